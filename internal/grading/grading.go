// SPDX-License-Identifier: GPL-3.0-or-later

// Package grading runs assignment checks against a topology and
// scores the outcome.
//
// An assignment is a YAML document listing simulation checks. Each
// check runs one simulated operation and passes when the result
// matches the stated expectations; a check may expect failure, which
// lets assignments verify that a firewall-less lab really is broken
// where it should be.
package grading

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
	"gopkg.in/yaml.v3"
)

// Check types understood by the grader.
const (
	CheckPing = "ping"
	CheckDNS  = "dns"
	CheckHTTP = "http"
)

// Check is a single gradable expectation.
type Check struct {
	// Name labels the check in reports.
	Name string `yaml:"name"`

	// Type is one of ping, dns, or http.
	Type string `yaml:"type"`

	// Source is the originating device address for every check type.
	Source string `yaml:"source"`

	// Destination is the ping target address.
	Destination string `yaml:"destination,omitempty"`

	// Server and Domain drive dns checks.
	Server string `yaml:"server,omitempty"`
	Domain string `yaml:"domain,omitempty"`

	// Target and Port drive http checks; Target may be an address or
	// a domain name.
	Target string `yaml:"target,omitempty"`
	Port   int    `yaml:"port,omitempty"`

	// ExpectSuccess is the expected outcome; nil means success.
	ExpectSuccess *bool `yaml:"expectSuccess,omitempty"`

	// ExpectKind optionally pins the expected failure kind.
	ExpectKind string `yaml:"expectKind,omitempty"`

	// ExpectAddress optionally pins the resolved address of a dns or
	// http check.
	ExpectAddress string `yaml:"expectAddress,omitempty"`

	// ExpectBody optionally pins the body of an http check.
	ExpectBody string `yaml:"expectBody,omitempty"`

	// Points is the check's weight; zero means 1.
	Points int `yaml:"points,omitempty"`
}

// points returns the check weight.
func (c *Check) points() int {
	if c.Points > 0 {
		return c.Points
	}
	return 1
}

// Assignment is a named list of checks.
type Assignment struct {
	// Name identifies the assignment in grades and exports.
	Name string `yaml:"name"`

	// Description optionally explains the exercise.
	Description string `yaml:"description,omitempty"`

	// Checks are graded in order.
	Checks []Check `yaml:"checks"`
}

// Total returns the maximum number of points.
func (a *Assignment) Total() int {
	total := 0
	for i := range a.Checks {
		total += a.Checks[i].points()
	}
	return total
}

// ParseAssignment decodes an assignment document, rejecting unknown
// fields and malformed checks.
func ParseAssignment(data []byte) (*Assignment, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var a Assignment
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("parsing assignment: %w", err)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("assignment has no name")
	}
	if len(a.Checks) == 0 {
		return nil, fmt.Errorf("assignment %q has no checks", a.Name)
	}
	for i := range a.Checks {
		if err := validateCheck(&a.Checks[i]); err != nil {
			return nil, fmt.Errorf("check %d: %w", i+1, err)
		}
	}
	return &a, nil
}

// LoadAssignment reads and parses an assignment file.
func LoadAssignment(path string) (*Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := ParseAssignment(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func validateCheck(c *Check) error {
	if c.Name == "" {
		return fmt.Errorf("check has no name")
	}
	if c.Source == "" {
		return fmt.Errorf("%s: check has no source", c.Name)
	}
	switch c.Type {
	case CheckPing:
		if c.Destination == "" {
			return fmt.Errorf("%s: ping check has no destination", c.Name)
		}
	case CheckDNS:
		if c.Server == "" || c.Domain == "" {
			return fmt.Errorf("%s: dns check needs a server and a domain", c.Name)
		}
	case CheckHTTP:
		if c.Target == "" {
			return fmt.Errorf("%s: http check has no target", c.Name)
		}
	default:
		return fmt.Errorf("%s: unknown check type %q", c.Name, c.Type)
	}
	return nil
}

// CheckResult is the graded outcome of one check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Earned int    `json:"earned"`
	Detail string `json:"detail,omitempty"`
}

// Grade is the outcome of running an assignment against one topology.
type Grade struct {
	Assignment string        `json:"assignment"`
	Student    string        `json:"student,omitempty"`
	Earned     int           `json:"earned"`
	Total      int           `json:"total"`
	Results    []CheckResult `json:"results"`
}

// Grader runs assignments. The zero value grades with the default
// simulation engine.
type Grader struct {
	// Engine optionally overrides the simulation engine.
	Engine *sim.Engine
}

func (g *Grader) engine() *sim.Engine {
	if g.Engine != nil {
		return g.Engine
	}
	return sim.DefaultEngine
}

// Run grades the topology against the assignment.
func (g *Grader) Run(s *topo.Snapshot, a *Assignment, student string) *Grade {
	grade := &Grade{
		Assignment: a.Name,
		Student:    student,
		Total:      a.Total(),
	}
	for i := range a.Checks {
		check := &a.Checks[i]
		passed, detail := g.evaluate(s, check)
		result := CheckResult{
			Name:   check.Name,
			Passed: passed,
			Points: check.points(),
			Detail: detail,
		}
		if passed {
			result.Earned = result.Points
			grade.Earned += result.Points
		}
		grade.Results = append(grade.Results, result)
	}
	return grade
}

// evaluate runs one check and compares the result with its
// expectations.
func (g *Grader) evaluate(s *topo.Snapshot, c *Check) (bool, string) {
	var res *sim.Result
	switch c.Type {
	case CheckPing:
		res = g.engine().Ping(s, c.Source, c.Destination)
	case CheckDNS:
		res = g.engine().Query(s, c.Source, c.Server, c.Domain)
	case CheckHTTP:
		res = g.engine().Fetch(s, c.Source, c.Target, c.Port)
	default:
		return false, fmt.Sprintf("unknown check type %q", c.Type)
	}

	wantSuccess := c.ExpectSuccess == nil || *c.ExpectSuccess
	if res.Success != wantSuccess {
		if res.Success {
			return false, "succeeded, but the check expected a failure"
		}
		return false, res.Message
	}
	if c.ExpectKind != "" && string(res.Kind) != c.ExpectKind {
		return false, fmt.Sprintf("failed with %q, expected %q: %s", res.Kind, c.ExpectKind, res.Message)
	}
	if c.ExpectAddress != "" && res.ResolvedAddr != c.ExpectAddress {
		return false, fmt.Sprintf("resolved %q, expected %q", res.ResolvedAddr, c.ExpectAddress)
	}
	if c.ExpectBody != "" && res.Body != c.ExpectBody {
		return false, fmt.Sprintf("served %q, expected %q", res.Body, c.ExpectBody)
	}
	if res.Message != "" {
		return true, res.Message
	}
	return true, "ok"
}
