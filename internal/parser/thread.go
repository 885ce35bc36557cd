package parser

import "strings"

// replyPrefixes are reply/forward markers in several languages, lowercase.
var replyPrefixes = map[string]bool{
	"re": true, "res": true, "r": true, "rif": true, "ref": true,
	"fw": true, "fwd": true, "tr": true, "rv": true, "enc": true,
	"aw": true, "wg": true, "antw": true, "sv": true, "vs": true,
	"vb": true, "vl": true, "odp": true, "ynt": true, "ant": true,
}

// ThreadName strips any run of reply and forward prefixes ("Re:", "Fwd:", "AW[2]:"
// ...) from the start of subject.
func ThreadName(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		rest, ok := stripReplyPrefix(s)
		if !ok {
			return s
		}
		s = rest
	}
}

func stripReplyPrefix(s string) (string, bool) {
	i := 0
	for i < len(s) && (s[i] >= 'a' && s[i] <= 'z' || s[i] >= 'A' && s[i] <= 'Z') {
		i++
	}
	if i == 0 || !replyPrefixes[strings.ToLower(s[:i])] {
		return s, false
	}

	// Optional counter: "Re[2]:", "Re(2):", "Re^2:".
	if i < len(s) && (s[i] == '[' || s[i] == '(' || s[i] == '^') {
		closer := map[byte]byte{'[': ']', '(': ')', '^': 0}[s[i]]
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 {
			return s, false
		}
		if closer != 0 {
			if j >= len(s) || s[j] != closer {
				return s, false
			}
			j++
		}
		i = j
	}

	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i >= len(s) || s[i] != ':' {
		return s, false
	}
	return strings.TrimSpace(s[i+1:]), true
}
