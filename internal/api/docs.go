package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>chrome-log API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <a href="/docs/stream" style="
    position: fixed;
    top: 12px;
    right: 16px;
    z-index: 9999;
    background: #161b22;
    border: 1px solid #30363d;
    border-radius: 6px;
    color: #58a6ff;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
    font-size: 12px;
    font-weight: 500;
    padding: 5px 12px;
    text-decoration: none;
  ">Live Stream Docs</a>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`

const streamDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Live Stream - chrome-log</title>
  <style>
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; font-size: 14px; line-height: 1.6; background: #0d1117; color: #c9d1d9; }
    main { max-width: 860px; margin: 0 auto; padding: 24px; }
    a { color: #58a6ff; text-decoration: none; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border-bottom: 1px solid #30363d; padding: 6px 8px; text-align: left; }
    #log { height: 240px; overflow-y: auto; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Live Stream</h1>
  <p><code>GET /api/v1/stream</code> is a Server-Sent Events feed. It is only
  available when the dashboard runs inside the capture daemon.
  Restrict feeds with <code>?feeds=request,tab</code>.</p>
  <table>
    <tr><th>Event</th><th>Data</th></tr>
    <tr><td><code>request</code></td><td>A record as written to requests.jsonl</td></tr>
    <tr><td><code>tab</code></td><td><code>{"action","sessionId","targetId","url"}</code> for attach, detach and navigate</td></tr>
    <tr><td><code>pause</code></td><td><code>{"paused": true|false}</code></td></tr>
  </table>
  <h2>Example</h2>
  <pre>const es = new EventSource("/api/v1/stream?feeds=request");
es.addEventListener("request", (e) =&gt; console.log(JSON.parse(e.data)));</pre>
  <h2>Try it</h2>
  <pre id="log"></pre>
  <script>
    const log = document.getElementById("log");
    const es = new EventSource("/api/v1/stream");
    for (const feed of ["request", "tab", "pause"]) {
      es.addEventListener(feed, (e) => {
        log.textContent += feed + " " + e.data + "\n";
        log.scrollTop = log.scrollHeight;
      });
    }
  </script>
</main>
</body>
</html>`
