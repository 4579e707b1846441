package beancount

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DateLayout = "2006-01-02"
	FlagOK     = "*"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	tagRe  = regexp.MustCompile(`^#[A-Za-z0-9\-_/.]+$`)
)

type Posting struct {
	Account string
	Amount  Amount
}

func (p Posting) String() string {
	return p.Account + " " + p.Amount.String()
}

type Transaction struct {
	Date      time.Time
	Payee     string
	Narration string
	Tags      []string
	Postings  []Posting
}

// String renders the transaction in beancount syntax, one line per posting, ending
// with a newline.
func (t *Transaction) String() string {
	var b strings.Builder
	b.WriteString(t.Date.Format(DateLayout))
	b.WriteString(" " + FlagOK)
	if t.Payee != "" {
		fmt.Fprintf(&b, ` "%s"`, EscapeString(t.Payee))
	}
	fmt.Fprintf(&b, ` "%s"`, EscapeString(t.Narration))
	for _, tag := range t.Tags {
		b.WriteString(" " + tag)
	}
	b.WriteString("\n")

	for _, p := range t.Postings {
		b.WriteString("    " + p.String() + "\n")
	}
	return b.String()
}

func EscapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// FromCommand builds a transaction from the split arguments of
//
//	[YYYY-MM-DD] [>Payee] [#Tag ...] Amount Account ExpenseAccount Narration...
//
// The expense account is searched among Expenses:* accounts and the spending account among
// the rest. The date falls back to today.
func FromCommand(args []string, accounts []string, defaultCurrency string, today time.Time) (*Transaction, error) {
	i := 0
	date := today
	if i < len(args) && dateRe.MatchString(args[i]) {
		d, err := time.ParseInLocation(DateLayout, args[i], today.Location())
		if err != nil {
			return nil, errors.Errorf("Invalid date %s", args[i])
		}
		date = d
		i++
	}

	var payee string
	if i < len(args) && strings.HasPrefix(args[i], ">") {
		payee = args[i][1:]
		i++
	}

	tags := make([]string, 0)
	for i < len(args) && strings.HasPrefix(args[i], "#") {
		if !tagRe.MatchString(args[i]) {
			return nil, errors.Errorf("Invalid tag %s", args[i])
		}
		tags = append(tags, args[i])
		i++
	}

	rest := args[i:]
	if len(rest) < 1 {
		return nil, errors.New("Not enough arguments: amount")
	}
	if len(rest) < 2 {
		return nil, errors.New("Not enough arguments: account")
	}
	if len(rest) < 3 {
		return nil, errors.New("Not enough arguments: expense account")
	}

	amount, err := ParseAmount(rest[0], defaultCurrency)
	if err != nil {
		return nil, err
	}
	account, err := FilterAccount(accounts, rest[1], IsNotExpense)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid spend account")
	}
	expense, err := FilterAccount(accounts, rest[2], IsExpense)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid expense account")
	}

	return &Transaction{
		Date:      date,
		Payee:     payee,
		Narration: strings.Join(rest[3:], " "),
		Tags:      tags,
		Postings: []Posting{
			{Account: expense, Amount: amount},
			{Account: account, Amount: amount.Neg()},
		},
	}, nil
}

// EntryDate reads the date an entry starts with.
func EntryDate(entry string) (time.Time, error) {
	if len(entry) < len(DateLayout) {
		return time.Time{}, errors.New("entry too short")
	}
	d, err := time.Parse(DateLayout, entry[:len(DateLayout)])
	if err != nil {
		return time.Time{}, errors.Wrap(err, "entry date")
	}
	return d, nil
}
