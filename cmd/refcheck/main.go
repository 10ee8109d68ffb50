// Command refcheck normalizes and validates cadastral references without
// contacting the backend. References come from the arguments or, when none are
// given, one per line from stdin.
//
// Usage:
//
//	go run ./cmd/refcheck "9872023 vh5797s 0001 wx" 1234
//	cut -d, -f1 parcelas.csv | go run ./cmd/refcheck -quiet
//
// The exit status is 1 when any reference is invalid.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
)

func main() {
	quiet := flag.Bool("quiet", false, "print only invalid references")
	flag.Parse()

	var in io.Reader = os.Stdin
	if flag.NArg() > 0 {
		in = strings.NewReader(strings.Join(flag.Args(), "\n"))
	}

	code, err := run(in, os.Stdout, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refcheck: %v\n", err)
		os.Exit(2)
	}
	os.Exit(code)
}

// run checks one reference per non-blank line of in and reports each on out.
func run(in io.Reader, out io.Writer, quiet bool) (int, error) {
	var valid, invalid int

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ref, err := domain.ParseReference(line)
		if err != nil {
			invalid++
			fmt.Fprintf(out, "FAIL  %-24s %v\n", domain.Normalize(line), err)
			continue
		}
		valid++
		if !quiet {
			fmt.Fprintf(out, "OK    %s\n", ref)
		}
	}
	if err := scanner.Err(); err != nil {
		return 2, fmt.Errorf("read input: %w", err)
	}

	fmt.Fprintf(out, "\n%d valid, %d invalid\n", valid, invalid)
	if invalid > 0 {
		return 1, nil
	}
	return 0, nil
}
