// SPDX-License-Identifier: GPL-3.0-or-later

// Command netlab runs lab simulations from the command line: load a
// topology file, probe it, and print where packets go and why they
// stop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZhuChongjing/NetLabX/internal/grading"
	"github.com/ZhuChongjing/NetLabX/internal/scenario"
	"github.com/ZhuChongjing/NetLabX/internal/web"
	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
)

func main() {
	os.Exit(cliMain())
}

// cliMain is the real entry point, separated so tests can run the
// command in-process.
func cliMain() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

const usage = `usage: netlab <command> [flags] [args]

Commands:
  ping      simulate a reachability probe
  dns       simulate a DNS lookup
  http      simulate an HTTP fetch
  validate  report topology problems
  grade     grade a topology against an assignment
  hash      hash a teacher password for the daemon config

Run "netlab <command> -h" for command flags.
`

// run dispatches to a subcommand and returns the process exit code:
// 0 when the simulated operation succeeded, 1 when it failed, and 2
// for usage and load errors.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "ping":
		return cmdPing(args[1:], stdout, stderr)
	case "dns":
		return cmdDNS(args[1:], stdout, stderr)
	case "http":
		return cmdHTTP(args[1:], stdout, stderr)
	case "validate":
		return cmdValidate(args[1:], stdout, stderr)
	case "grade":
		return cmdGrade(args[1:], stdout, stderr)
	case "hash":
		return cmdHash(args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "netlab: unknown command %q\n", args[0])
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// loadSnapshot reads a scenario file into a normalized snapshot.
func loadSnapshot(path string) (*topo.Snapshot, error) {
	f, err := scenario.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Snapshot(), nil
}

func cmdPing(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "lab.yaml", "topology file")
	jsonOut := fs.Bool("json", false, "emit the raw result as JSON")
	maxHops := fs.Int("max-hops", 0, "hop budget override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: netlab ping [-f lab.yaml] [-json] <src> <dst>")
		return 2
	}
	snap, err := loadSnapshot(*file)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	engine := &sim.Engine{MaxHops: *maxHops}
	return report(stdout, engine.Ping(snap, fs.Arg(0), fs.Arg(1)), *jsonOut)
}

func cmdDNS(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dns", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "lab.yaml", "topology file")
	jsonOut := fs.Bool("json", false, "emit the raw result as JSON")
	maxHops := fs.Int("max-hops", 0, "hop budget override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 3 {
		fmt.Fprintln(stderr, "usage: netlab dns [-f lab.yaml] [-json] <src> <server> <domain>")
		return 2
	}
	snap, err := loadSnapshot(*file)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	engine := &sim.Engine{MaxHops: *maxHops}
	return report(stdout, engine.Query(snap, fs.Arg(0), fs.Arg(1), fs.Arg(2)), *jsonOut)
}

func cmdHTTP(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("http", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "lab.yaml", "topology file")
	jsonOut := fs.Bool("json", false, "emit the raw result as JSON")
	maxHops := fs.Int("max-hops", 0, "hop budget override")
	port := fs.Int("port", 80, "destination TCP port")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: netlab http [-f lab.yaml] [-port 80] [-json] <src> <target>")
		return 2
	}
	snap, err := loadSnapshot(*file)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	engine := &sim.Engine{MaxHops: *maxHops}
	return report(stdout, engine.Fetch(snap, fs.Arg(0), fs.Arg(1), *port), *jsonOut)
}

// report prints a simulation result and converts it to an exit code.
func report(stdout io.Writer, res *sim.Result, asJSON bool) int {
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else {
		renderResult(stdout, res)
	}
	if res.Success {
		return 0
	}
	return 1
}

// renderResult prints the human-readable form: the path, a verdict
// line, protocol extras, and the decision trace.
func renderResult(w io.Writer, res *sim.Result) {
	if len(res.Path) > 0 {
		fmt.Fprintln(w, strings.Join(res.Path, " -> "))
	}
	if res.Success {
		fmt.Fprintln(w, "ok:", res.Message)
	} else {
		fmt.Fprintf(w, "%s (%s): %s\n", res.Kind, res.ErrClass, res.Message)
	}
	if res.ResolvedAddr != "" {
		fmt.Fprintln(w, "resolved:", res.ResolvedAddr)
	}
	if res.HTTPStatus != 0 {
		fmt.Fprintln(w, "status:", res.HTTPStatus)
	}
	if res.Body != "" {
		fmt.Fprintln(w, "body:", res.Body)
	}
	if len(res.Steps) > 0 {
		fmt.Fprintln(w, "trace:")
		for _, step := range res.Steps {
			fmt.Fprintf(w, "  %s: %s\n", step.Device, step.Action)
		}
	}
}

func cmdValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "lab.yaml", "topology file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	snap, err := loadSnapshot(*file)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	if err := snap.Validate(); err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				fmt.Fprintln(stdout, "problem:", e.Error())
			}
		} else {
			fmt.Fprintln(stdout, "problem:", err.Error())
		}
		return 1
	}
	fmt.Fprintln(stdout, "ok: no problems found")
	return 0
}

func cmdGrade(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("grade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "lab.yaml", "topology file")
	assignmentFile := fs.String("assignment", "", "assignment file (required)")
	student := fs.String("student", "", "student name for the report")
	xlsxOut := fs.String("xlsx", "", "also write an XLSX grade sheet to this path")
	jsonOut := fs.Bool("json", false, "emit the grade as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *assignmentFile == "" {
		fmt.Fprintln(stderr, "netlab: -assignment is required")
		return 2
	}
	a, err := grading.LoadAssignment(*assignmentFile)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	snap, err := loadSnapshot(*file)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}

	grader := &grading.Grader{}
	grade := grader.Run(snap, a, *student)

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(grade)
	} else {
		renderGrade(stdout, grade)
	}

	if *xlsxOut != "" {
		f, err := os.Create(*xlsxOut)
		if err != nil {
			fmt.Fprintln(stderr, "netlab:", err)
			return 2
		}
		defer f.Close()
		if err := grading.ExportXLSX(f, a, []*grading.Grade{grade}); err != nil {
			fmt.Fprintln(stderr, "netlab:", err)
			return 2
		}
	}

	if grade.Earned == grade.Total {
		return 0
	}
	return 1
}

// renderGrade prints one line per check plus the total.
func renderGrade(w io.Writer, g *grading.Grade) {
	for _, res := range g.Results {
		mark := "PASS"
		if !res.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%d/%d): %s\n", mark, res.Name, res.Earned, res.Points, res.Detail)
	}
	fmt.Fprintf(w, "total: %d/%d\n", g.Earned, g.Total)
}

func cmdHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	password := fs.String("password", "", "password to hash (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *password == "" {
		fmt.Fprintln(stderr, "netlab: -password is required")
		return 2
	}
	hash, err := web.HashPassword(*password)
	if err != nil {
		fmt.Fprintln(stderr, "netlab:", err)
		return 2
	}
	fmt.Fprintln(stdout, hash)
	return 0
}
