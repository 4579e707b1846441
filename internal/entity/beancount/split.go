package beancount

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	errNewlineInArgument = errors.New("newline within argument")
	errNewlineInDouble   = errors.New("newline within double quote")
	errNewlineInSingle   = errors.New("newline within single quote")
	errUnmatchedDouble   = errors.New("unmatched double quote")
	errUnmatchedSingle   = errors.New("unmatched single quote")
)

// SplitCommand splits s into arguments the way a shell would, in a reduced form:
//   - arguments are separated by spaces or tabs
//   - single or double quotes group words into one argument
//   - inside double quotes \" and \\ are escapes, any other backslash is kept
//   - inside single quotes nothing is escaped
//   - newlines are not allowed anywhere
func SplitCommand(s string) ([]string, error) {
	sp := splitter{in: []rune(s)}
	res := make([]string, 0)
	for {
		word, ok, err := sp.word()
		if err != nil {
			return nil, err
		}
		if !ok {
			return res, nil
		}
		res = append(res, word)
	}
}

type splitter struct {
	in  []rune
	pos int
}

func (s *splitter) next() (rune, bool) {
	if s.pos >= len(s.in) {
		return 0, false
	}
	ch := s.in[s.pos]
	s.pos++
	return ch, true
}

func (s *splitter) word() (string, bool, error) {
	for s.pos < len(s.in) && (s.in[s.pos] == ' ' || s.in[s.pos] == '\t') {
		s.pos++
	}
	if s.pos >= len(s.in) {
		return "", false, nil
	}

	var b strings.Builder
	for {
		ch, ok := s.next()
		if !ok {
			break
		}
		var err error
		switch ch {
		case '"':
			err = s.double(&b)
		case '\'':
			err = s.single(&b)
		case '\n':
			err = errNewlineInArgument
		case ' ', '\t':
			return b.String(), true, nil
		default:
			b.WriteRune(ch)
		}
		if err != nil {
			return "", false, err
		}
	}
	return b.String(), true, nil
}

func (s *splitter) double(b *strings.Builder) error {
	for {
		ch, ok := s.next()
		if !ok {
			return errUnmatchedDouble
		}
		switch ch {
		case '"':
			return nil
		case '\n':
			return errNewlineInDouble
		case '\\':
			ch2, ok := s.next()
			if !ok {
				continue
			}
			switch ch2 {
			case '"', '\\':
				b.WriteRune(ch2)
			case '\n':
				return errNewlineInDouble
			default:
				b.WriteRune('\\')
				b.WriteRune(ch2)
			}
		default:
			b.WriteRune(ch)
		}
	}
}

func (s *splitter) single(b *strings.Builder) error {
	for {
		ch, ok := s.next()
		if !ok {
			return errUnmatchedSingle
		}
		switch ch {
		case '\'':
			return nil
		case '\n':
			return errNewlineInSingle
		default:
			b.WriteRune(ch)
		}
	}
}
