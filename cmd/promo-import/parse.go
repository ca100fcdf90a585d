package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
)

const (
	fieldSep   = ";"
	packageSep = ","
	dateLayout = "2006-01-02"
)

// parseLine reads one code record:
//
//	CODE;PERCENT;pkg1,pkg2;description[;from;until]
//
// Dates are RFC 3339 timestamps or plain dates at midnight Cairo time. An
// empty date leaves that side of the window open.
func parseLine(line string) (promo.Code, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) != 4 && len(fields) != 6 {
		return promo.Code{}, errors.Errorf("want 4 or 6 fields, got %d", len(fields))
	}

	percent, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return promo.Code{}, errors.Wrap(err, "percent")
	}

	var pkgs []catalog.ID
	for _, s := range strings.Split(fields[2], packageSep) {
		id, err := catalog.ParseID(s)
		if err != nil {
			return promo.Code{}, err
		}
		pkgs = append(pkgs, id)
	}

	c := promo.Code{
		Code:        promo.Normalize(fields[0]),
		Percent:     percent,
		Description: strings.TrimSpace(fields[3]),
		Packages:    pkgs,
	}
	if len(fields) == 6 {
		from, err := parseDate(fields[4])
		if err != nil {
			return promo.Code{}, errors.Wrap(err, "from")
		}
		until, err := parseDate(fields[5])
		if err != nil {
			return promo.Code{}, errors.Wrap(err, "until")
		}
		if !from.IsZero() || !until.IsZero() {
			c.Window = &promo.Window{From: from, Until: until}
		}
	}

	if err := c.Validate(); err != nil {
		return promo.Code{}, err
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, promo.Cairo)
}

// lineError locates a malformed record.
type lineError struct {
	path string
	line int
	err  error
}

func (e *lineError) Error() string {
	return e.path + ":" + strconv.Itoa(e.line) + ": " + e.err.Error()
}

func (e *lineError) Unwrap() error { return e.err }

// parseCodes reads records from r. Blank lines and lines starting with # are
// skipped. Malformed records are reported through bad and do not stop the
// scan.
func parseCodes(ctx context.Context, path string, r io.Reader, bad func(error)) ([]promo.Code, error) {
	var (
		codes []promo.Code
		n     int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseLine(line)
		if err != nil {
			bad(&lineError{path: path, line: n, err: err})
			continue
		}
		codes = append(codes, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return codes, nil
}

// parseFile parses path, decompressing it when it ends in .gz.
func parseFile(ctx context.Context, path string, bad func(error)) ([]promo.Code, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return parseCodes(ctx, path, r, bad)
}

// dedupe keeps the first occurrence of every code, preserving order, and
// returns the dropped duplicates.
func dedupe(codes []promo.Code) (unique []promo.Code, dups []string) {
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, ok := seen[c.Code]; ok {
			dups = append(dups, c.Code)
			continue
		}
		seen[c.Code] = struct{}{}
		unique = append(unique, c)
	}
	return unique, dups
}
