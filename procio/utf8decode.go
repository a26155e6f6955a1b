package procio

import "unicode/utf8"

// decodeChunk incrementally decodes data = carry+newBytes as UTF-8,
// splitting into valid runs and invalid runs. Each maximal invalid
// subpart becomes exactly one replacement rune in out. If the tail of
// data is an incomplete (but possibly valid once more bytes arrive)
// multibyte sequence, it is returned as nextCarry instead of being
// decoded, to be prepended to the next read.
func decodeChunk(carry, newBytes []byte) (out []byte, nextCarry []byte) {
	data := make([]byte, 0, len(carry)+len(newBytes))
	data = append(data, carry...)
	data = append(data, newBytes...)

	result := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if !utf8.FullRune(data[i:]) {
			return result, data[i:]
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// The subpart runs on while its bytes still form the prefix
			// of some valid encoding.
			n := 1
			for i+n < len(data) && !utf8.FullRune(data[i:i+n+1]) {
				n++
			}
			result = utf8.AppendRune(result, utf8.RuneError)
			i += n
			continue
		}
		result = append(result, data[i:i+size]...)
		i += size
	}
	return result, nil
}
