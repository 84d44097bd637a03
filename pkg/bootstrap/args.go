// Package bootstrap defines the command-line contract of the worker-node
// bootstrap script that runs each job.
//
// A rendered argument string has the form:
//
//	[--setup <script>] [--copyToLocal <src> <dst>]... [--copyFromLocal <src> <dst>]...
//	--exe <name> --args [<arg>...]
//
// --args is greedy: everything after it is passed to the executable, so it is
// always the last option.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

// Flag names of the worker contract.
const (
	FlagSetup         = "--setup"
	FlagCopyToLocal   = "--copyToLocal"
	FlagCopyFromLocal = "--copyFromLocal"
	FlagExe           = "--exe"
	FlagArgs          = "--args"
)

// ErrMalformed indicates an argument list that does not follow the contract.
var ErrMalformed = errors.New("malformed bootstrap arguments")

// Copy is one staged file: Src is copied to Dst.
type Copy struct {
	Src string
	Dst string
}

// Args is the parsed form of a bootstrap argument list.
type Args struct {
	Setup         string
	CopyToLocal   []Copy
	CopyFromLocal []Copy
	Exe           string
	Args          []string
}

// Tokens renders a in contract order.
func (a Args) Tokens() []string {
	var out []string
	if a.Setup != "" {
		out = append(out, FlagSetup, a.Setup)
	}
	for _, c := range a.CopyToLocal {
		out = append(out, FlagCopyToLocal, c.Src, c.Dst)
	}
	for _, c := range a.CopyFromLocal {
		out = append(out, FlagCopyFromLocal, c.Src, c.Dst)
	}
	out = append(out, FlagExe, a.Exe)
	out = append(out, FlagArgs)
	out = append(out, a.Args...)
	return out
}

// String joins Tokens with single spaces.
func (a Args) String() string {
	return strings.Join(a.Tokens(), " ")
}

// SplitArgs splits a single argument string into tokens on runs of
// whitespace. Quotes and shell metacharacters are ordinary characters, since
// String joins tokens with plain spaces and the worker splits them the same
// way.
func SplitArgs(s string) []string {
	return strings.Fields(s)
}

// ParseString splits s with SplitArgs and parses it.
func ParseString(s string) (*Args, error) {
	return Parse(SplitArgs(s))
}

// Parse reads a token list produced by Tokens.
func Parse(tokens []string) (*Args, error) {
	a := &Args{}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case FlagSetup, FlagExe:
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%w: %s requires a value", ErrMalformed, tok)
			}
			if tok == FlagSetup {
				a.Setup = tokens[i+1]
			} else {
				a.Exe = tokens[i+1]
			}
			i++
		case FlagCopyToLocal, FlagCopyFromLocal:
			if i+2 >= len(tokens) {
				return nil, fmt.Errorf("%w: %s requires <source> <destination>", ErrMalformed, tok)
			}
			c := Copy{Src: tokens[i+1], Dst: tokens[i+2]}
			if tok == FlagCopyToLocal {
				a.CopyToLocal = append(a.CopyToLocal, c)
			} else {
				a.CopyFromLocal = append(a.CopyFromLocal, c)
			}
			i += 2
		case FlagArgs:
			a.Args = append([]string{}, tokens[i+1:]...)
			return a, nil
		default:
			return nil, fmt.Errorf("%w: unexpected token %q", ErrMalformed, tok)
		}
	}
	return a, nil
}
