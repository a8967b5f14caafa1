package protocol

import "bytes"

// MaxLineLength is the longest command line accepted, in bytes.
const MaxLineLength = 128

// Parse converts one command line into a Command. Keywords match
// case-insensitively in long or short form. Out-of-range numbers are
// clamped and flagged on the returned Command. Parse does not allocate.
func Parse(line []byte) (Command, error) {
	var cmd Command

	if len(line) > MaxLineLength {
		return cmd, ErrLineTooLong
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return cmd, ErrUnknownCommand
	}

	keyword, params, hasParams := bytes.Cut(line, []byte{':'})
	keyword = bytes.TrimSpace(keyword)
	if len(keyword) == 0 || len(keyword) > maxKeywordLength {
		return cmd, ErrUnknownCommand
	}

	var upper [MaxLineLength]byte
	for i, c := range keyword {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	alias, ok := byToken[string(upper[:len(keyword)])]
	if !ok {
		return cmd, ErrUnknownCommand
	}

	cmd.Kind = alias.Kind
	cmd.Joint = alias.Joint
	params = bytes.TrimSpace(params)

	switch alias.Shape {
	case ParamNone:
		if hasParams && len(params) > 0 {
			return Command{}, ErrBadParameter
		}
	case ParamInt:
		if len(params) == 0 {
			return Command{}, ErrMissingParameter
		}
		v, ok := parseInt(params)
		if !ok {
			return Command{}, ErrBadParameter
		}
		cmd.Args[0] = cmd.clamp(v, alias.Min, alias.Max)
		cmd.NArgs = 1
	case ParamIntPair:
		if len(params) == 0 {
			return Command{}, ErrMissingParameter
		}
		first, second, found := bytes.Cut(params, []byte{','})
		if !found {
			return Command{}, ErrMissingParameter
		}
		a, okA := parseInt(bytes.TrimSpace(first))
		b, okB := parseInt(bytes.TrimSpace(second))
		if !okA || !okB {
			return Command{}, ErrBadParameter
		}
		cmd.Args[0] = cmd.clamp(a, alias.Min, alias.Max)
		cmd.Args[1] = cmd.clamp(b, alias.Min, alias.Max)
		cmd.NArgs = 2
	case ParamName:
		if len(params) == 0 {
			return Command{}, ErrMissingParameter
		}
		if v, ok := parseInt(params); ok {
			cmd.Args[0] = v
			cmd.NArgs = 1
			break
		}
		if len(params) > MaxNameLength || !isIdentifier(params) {
			return Command{}, ErrBadParameter
		}
		cmd.nameLen = copy(cmd.name[:], params)
	}

	return cmd, nil
}

func (c *Command) clamp(v, lo, hi int) int {
	if v < lo {
		c.Clamped = true
		return lo
	}
	if v > hi {
		c.Clamped = true
		return hi
	}
	return v
}

// parseInt accepts an optional sign followed by decimal digits. Values that
// overflow saturate, so they clamp like any other out-of-range number.
func parseInt(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}
	const limit = 1 << 30
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		if n < limit {
			n = n*10 + int(c-'0')
		}
	}
	if n > limit {
		n = limit
	}
	if neg {
		n = -n
	}
	return n, true
}

func isIdentifier(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
