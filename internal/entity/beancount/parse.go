package beancount

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Entry is a dated directive read back from a ledger file. Only transactions carry
// postings; other directives keep their keyword in Kind.
type Entry struct {
	Line     int
	Date     time.Time
	Kind     string
	Header   string
	Postings []ParsedPosting
}

func (e *Entry) IsTransaction() bool {
	return e.Kind == FlagOK || e.Kind == "!" || e.Kind == "txn"
}

// ParsedPosting has a nil Amount when the amount was left for beancount to infer.
type ParsedPosting struct {
	Line    int
	Account string
	Amount  *Amount
	// Priced is set when a cost or price follows the amount.
	Priced bool
}

var directiveKinds = map[string]bool{
	"open": true, "close": true, "balance": true, "pad": true, "note": true,
	"document": true, "price": true, "event": true, "query": true, "custom": true,
	"commodity": true,
}

// ParseEntries reads dated entries. Indented lines following a transaction header are
// its postings; comments and metadata lines are skipped. Lines the reader does not
// understand are reported with their line number.
func ParseEntries(r io.Reader) ([]Entry, error) {
	entries := make([]Entry, 0)
	var cur *Entry

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(text)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, ";"):
			continue
		case text[0] == ' ' || text[0] == '\t':
			if cur == nil || !cur.IsTransaction() {
				continue
			}
			posting, ok, err := parsePosting(trimmed)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			if ok {
				posting.Line = line
				cur.Postings = append(cur.Postings, posting)
			}
		default:
			cur = nil
			fields := strings.Fields(trimmed)
			if !dateRe.MatchString(fields[0]) {
				// option, include, plugin, pushtag, ...
				continue
			}
			date, err := time.Parse(DateLayout, fields[0])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			if len(fields) < 2 {
				return nil, errors.Errorf("line %d: missing directive after date", line)
			}
			kind := fields[1]
			if !directiveKinds[kind] && kind != FlagOK && kind != "!" && kind != "txn" {
				return nil, errors.Errorf("line %d: unknown directive %q", line, kind)
			}
			entries = append(entries, Entry{
				Line:   line,
				Date:   date,
				Kind:   kind,
				Header: trimmed,
			})
			cur = &entries[len(entries)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read entries")
	}
	return entries, nil
}

func parsePosting(s string) (ParsedPosting, bool, error) {
	if i := strings.Index(s, ";"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ParsedPosting{}, false, nil
	}
	if fields[0] == FlagOK || fields[0] == "!" {
		fields = fields[1:]
		if len(fields) == 0 {
			return ParsedPosting{}, false, errors.New("posting without account")
		}
	}
	// metadata: "key: value"
	if strings.HasSuffix(fields[0], ":") {
		return ParsedPosting{}, false, nil
	}
	account := fields[0]
	if !strings.Contains(account, ":") {
		return ParsedPosting{}, false, errors.Errorf("invalid account %q", account)
	}

	res := ParsedPosting{Account: account}
	if len(fields) < 2 {
		return res, true, nil
	}
	if len(fields) < 3 {
		return ParsedPosting{}, false, errors.Errorf("amount without currency in posting %q", s)
	}
	number, err := decimal.NewFromString(strings.ReplaceAll(fields[1], ",", ""))
	if err != nil {
		return ParsedPosting{}, false, errors.Errorf("invalid number %q", fields[1])
	}
	res.Amount = &Amount{Number: number, Currency: fields[2]}
	res.Priced = len(fields) > 3
	return res, true, nil
}
