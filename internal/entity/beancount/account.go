package beancount

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const ExpensesPrefix = "Expenses:"

var (
	ErrNoMatchedAccount = errors.New("No matched account")
)

// AccountPredicate narrows the candidate accounts for a search term.
type AccountPredicate func(account string) bool

func IsExpense(account string) bool {
	return strings.HasPrefix(account, ExpensesPrefix)
}

func IsNotExpense(account string) bool {
	return !IsExpense(account)
}

// LastComponent returns the part after the last colon.
func LastComponent(account string) string {
	if i := strings.LastIndexByte(account, ':'); i >= 0 {
		return account[i+1:]
	}
	return account
}

// MatchAccount reports whether every whitespace separated part of the lowercased term
// appears in the account.
func MatchAccount(account, term string) bool {
	lower := strings.ToLower(account)
	for _, t := range strings.Fields(term) {
		if !strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

// FilterAccount picks the single account matching term. When several accounts match as a
// whole, the one whose last component matches wins.
func FilterAccount(accounts []string, term string, pred AccountPredicate) (string, error) {
	term = strings.ToLower(term)

	matched := make([]string, 0)
	for _, ac := range accounts {
		if MatchAccount(ac, term) && pred(ac) {
			matched = append(matched, ac)
		}
	}

	switch len(matched) {
	case 0:
		return "", ErrNoMatchedAccount
	case 1:
		return matched[0], nil
	}

	lastMatch := make([]string, 0)
	for _, ac := range matched {
		if MatchAccount(LastComponent(ac), term) {
			lastMatch = append(lastMatch, ac)
		}
	}

	switch len(lastMatch) {
	case 0:
		return "", fmt.Errorf("More than one matched account: %q", matched)
	case 1:
		return lastMatch[0], nil
	default:
		return "", fmt.Errorf("More than one last-component matched account: %q", lastMatch)
	}
}

// SearchAccounts returns accounts containing every term, case-insensitive.
func SearchAccounts(accounts []string, query string) []string {
	query = strings.ToLower(query)
	res := make([]string, 0, len(accounts))
	for _, ac := range accounts {
		if MatchAccount(ac, query) {
			res = append(res, ac)
		}
	}
	return res
}

// AccountLife is the period an account may be posted to. Close is zero while the
// account is open.
type AccountLife struct {
	Open  time.Time
	Close time.Time
}

// Active reports whether a posting dated date may use the account. Postings on the
// close date itself are allowed.
func (l AccountLife) Active(date time.Time) bool {
	if date.Before(l.Open) {
		return false
	}
	return l.Close.IsZero() || !date.After(l.Close)
}

// Chart maps account names to their open and close dates.
type Chart map[string]AccountLife

// OpenAccounts returns the accounts without a close directive, sorted by name.
func (c Chart) OpenAccounts() []string {
	res := make([]string, 0, len(c))
	for ac, life := range c {
		if life.Close.IsZero() {
			res = append(res, ac)
		}
	}
	sort.Strings(res)
	return res
}

// ParseChart reads the open and close directives. Lines whose date does not parse are
// skipped like any other line the reader does not understand.
func ParseChart(r io.Reader) (Chart, error) {
	chart, _, err := parseChart(r)
	return chart, err
}

func parseChart(r io.Reader) (Chart, []string, error) {
	chart := make(Chart)
	order := make([]string, 0)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || strings.HasPrefix(fields[0], ";") {
			continue
		}
		if fields[1] != "open" && fields[1] != "close" {
			continue
		}
		date, err := time.Parse(DateLayout, fields[0])
		if err != nil {
			continue
		}

		account := fields[2]
		life, seen := chart[account]
		switch fields[1] {
		case "open":
			if !seen {
				order = append(order, account)
			}
			life = AccountLife{Open: date}
		case "close":
			life.Close = date
		}
		chart[account] = life
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "read accounts")
	}
	return chart, order, nil
}

// ParseAccounts returns the accounts still open, in the order they were opened.
func ParseAccounts(r io.Reader) ([]string, error) {
	chart, order, err := parseChart(r)
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, len(order))
	for _, ac := range order {
		if chart[ac].Close.IsZero() {
			res = append(res, ac)
		}
	}
	return res, nil
}
