package capture

import "unicode/utf8"

// truncateBytes cuts in to at most maxBytes without splitting a UTF-8
// sequence. It also reports whether a cut happened and the original length.
func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in)
	}
	cut := maxBytes
	for cut > 0 && cut > maxBytes-utf8.UTFMax && !utf8.RuneStart(in[cut]) {
		cut--
	}
	return in[:cut], true, len(in)
}

func truncateStringBytes(in string, maxBytes int) (string, bool, int) {
	out, truncated, originalSize := truncateBytes([]byte(in), maxBytes)
	return string(out), truncated, originalSize
}
