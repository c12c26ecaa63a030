/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command qcli is an interactive REPL client for the query coordinator,
// submitting LogicalPlanQuery requests over the wireproto HTTP bridge and
// printing the decoded Response. Grounded on scm/prompt.go's Repl: same
// chzyer/readline prompt/history/Ctrl-C handling, same "don't let one bad
// line kill the whole session" recover-and-continue loop, retargeted from an
// embedded scheme evaluator to a thin network client.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/wireproto"
)

const newPrompt = "\033[32mqcoord>\033[0m "
const resultPrompt = "\033[31m=\033[0m "

func main() {
	addr := flag.String("addr", "http://127.0.0.1:7890", "coordinator HTTP address")
	flag.Parse()

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       ".qcoord-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	c := &client{base: *addr, ref: "default"}
	fmt.Println("qcoord client — dataset:", c.ref, "(use `use <name>[.<db>]` to change)")

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("error:", r)
				}
			}()
			c.dispatch(line)
		}()
	}
}

// client holds the REPL's session state: the coordinator address and the
// dataset currently selected by `use`.
type client struct {
	base string
	ref  string
	db   string
}

func (c *client) dispatch(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "use":
		parts := strings.SplitN(fields[1], ".", 2)
		c.ref = parts[0]
		if len(parts) == 2 {
			c.db = parts[1]
		}
		fmt.Println("dataset set to", c.ref)
	case "names":
		c.getIndexNames()
	case "values":
		if len(fields) < 2 {
			fmt.Println("usage: values <index>")
			return
		}
		c.getIndexValues(fields[1])
	case "instant":
		c.query(buildInstant(fields[1:]))
	case "range":
		c.query(buildRange(fields[1:]))
	default:
		fmt.Println("unknown command:", fields[0])
		fmt.Println("commands: use <ds>, instant <cols...>, range <cols...> [--start=ms --end=ms --agg=f --comb=f], names, values <index>, quit")
	}
}

// buildInstant parses `instant col1 col2 ...` into PartitionsInstant over all
// partitions.
func buildInstant(args []string) plan.Logical {
	return plan.PartitionsInstant{
		PartQuery: plan.PartQuery{AllPartitions: true},
		Columns:   args,
	}
}

// buildRange parses `range col --start=ms --end=ms --agg=f --comb=f` into the
// deepest logical plan the flags ask for: a bare PartitionsRange, or wrapped
// in ReduceEach (--agg) and ReducePartitions (--comb).
func buildRange(args []string) plan.Logical {
	var cols []string
	var agg, comb string
	var startMs, endMs int64
	hasRange := false
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "--start="):
			startMs, _ = strconv.ParseInt(strings.TrimPrefix(a, "--start="), 10, 64)
			hasRange = true
		case strings.HasPrefix(a, "--end="):
			endMs, _ = strconv.ParseInt(strings.TrimPrefix(a, "--end="), 10, 64)
			hasRange = true
		case strings.HasPrefix(a, "--agg="):
			agg = strings.TrimPrefix(a, "--agg=")
		case strings.HasPrefix(a, "--comb="):
			comb = strings.TrimPrefix(a, "--comb=")
		default:
			cols = append(cols, a)
		}
	}

	dq := plan.DataQuery{AllChunks: !hasRange, HasRange: hasRange, StartMs: startMs, EndMs: endMs}
	var lp plan.Logical = plan.PartitionsRange{
		PartQuery: plan.PartQuery{AllPartitions: true},
		DataQuery: dq,
		Columns:   cols,
	}
	if agg != "" {
		lp = plan.ReduceEach{AggFunc: agg, Child: lp}
	}
	if comb != "" {
		lp = plan.ReducePartitions{CombFunc: comb, Child: lp}
	}
	return lp
}

func (c *client) query(lp plan.Logical) {
	req, err := wireproto.FromLogical(lp)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	u := fmt.Sprintf("%s/query?dataset=%s&db=%s", c.base, url.QueryEscape(c.ref), url.QueryEscape(c.db))
	resp, err := http.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	printResponse(resp.Body)
}

func (c *client) getIndexNames() {
	u := fmt.Sprintf("%s/index/names?dataset=%s&db=%s", c.base, url.QueryEscape(c.ref), url.QueryEscape(c.db))
	resp, err := http.Get(u)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	printResponse(resp.Body)
}

func (c *client) getIndexValues(index string) {
	u := fmt.Sprintf("%s/index/values?dataset=%s&db=%s&index=%s", c.base, url.QueryEscape(c.ref), url.QueryEscape(c.db), url.QueryEscape(index))
	resp, err := http.Get(u)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	printResponse(resp.Body)
}

func printResponse(r io.Reader) {
	var resp wireproto.Response
	dec := json.NewDecoder(r)
	if err := dec.Decode(&resp); err != nil {
		fmt.Println("error decoding response:", err)
		return
	}
	pretty, _ := json.MarshalIndent(resp, resultPrompt, "  ")
	fmt.Println(resultPrompt + string(pretty))
}
