package ledger

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"max.ks1230/beancount-bot/internal/entity/beancount"
)

var monthFileRe = regexp.MustCompile(`^(\d{4})/(\d{2})\.bean$`)

// Check validates every .bean file under txs against the open and close dates of the
// accounts of accounts.bean.
// Files named txs/YYYY/MM.bean must only hold entries of their month. A file that
// cannot be parsed is reported as a problem on its first line.
func Check(root string) ([]beancount.Problem, error) {
	chart, err := readChart(filepath.Join(root, AccountsFile))
	if err != nil {
		return nil, err
	}

	files, err := txFiles(filepath.Join(root, TxsDir))
	if err != nil {
		return nil, err
	}

	problems := make([]beancount.Problem, 0)
	for _, path := range files {
		rel, _ := filepath.Rel(root, path)
		found, err := checkFile(root, rel, chart)
		if err != nil {
			return nil, err
		}
		problems = append(problems, found...)
	}
	return problems, nil
}

func checkFile(root, rel string, chart beancount.Chart) ([]beancount.Problem, error) {
	f, err := os.Open(filepath.Join(root, rel))
	if err != nil {
		return nil, errors.Wrap(err, "check")
	}
	defer f.Close()

	entries, err := beancount.ParseEntries(f)
	if err != nil {
		return []beancount.Problem{{File: rel, Line: 1, Msg: err.Error()}}, nil
	}
	return beancount.Validate(rel, monthOf(rel), entries, chart), nil
}

func txFiles(dir string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".bean" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list transaction files")
	}
	sort.Strings(files)
	return files, nil
}

func monthOf(rel string) beancount.MonthFile {
	inTxs, err := filepath.Rel(TxsDir, rel)
	if err != nil {
		return beancount.MonthFile{}
	}
	m := monthFileRe.FindStringSubmatch(filepath.ToSlash(inTxs))
	if m == nil {
		return beancount.MonthFile{}
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	return beancount.MonthFile{Year: year, Month: month}
}
