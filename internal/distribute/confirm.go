/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package distribute

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Answer is the operator's response to a confirmation prompt.
type Answer int

const (
	AnswerYes Answer = iota
	AnswerNo
	AnswerAll
	AnswerCancel
)

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	case AnswerAll:
		return "all"
	case AnswerCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Confirmer asks the operator a yes/no/all/cancel question. The production
// implementation reads a terminal; tests use a scripted fake so the
// confirmation state machine is deterministic.
type Confirmer interface {
	Ask(prompt string) (Answer, error)
}

// TerminalConfirmer prompts on stdout and reads answers line by line.
type TerminalConfirmer struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewTerminalConfirmer reads from stdin and writes to stdout.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
	}
}

// Ask prompts until a recognizable answer arrives. EOF on stdin is treated as
// cancel so a closed pipe never silently auto-confirms.
func (t *TerminalConfirmer) Ask(prompt string) (Answer, error) {
	for {
		fmt.Fprintf(t.out, "%s [y]es / [n]o / [a]ll / [c]ancel: ", prompt)
		if !t.in.Scan() {
			if err := t.in.Err(); err != nil {
				return AnswerCancel, fmt.Errorf("failed to read confirmation: %w", err)
			}
			return AnswerCancel, nil
		}

		switch strings.ToLower(strings.TrimSpace(t.in.Text())) {
		case "y", "yes":
			return AnswerYes, nil
		case "n", "no":
			return AnswerNo, nil
		case "a", "all":
			return AnswerAll, nil
		case "c", "cancel", "q", "quit":
			return AnswerCancel, nil
		default:
			fmt.Fprintln(t.out, "Please answer y, n, a or c.")
		}
	}
}

// ScriptedConfirmer replays a fixed sequence of answers. Once the script is
// exhausted it cancels, so a test that under-scripts fails safe.
type ScriptedConfirmer struct {
	Answers []Answer
	Prompts []string
	next    int
}

func (s *ScriptedConfirmer) Ask(prompt string) (Answer, error) {
	s.Prompts = append(s.Prompts, prompt)
	if s.next >= len(s.Answers) {
		return AnswerCancel, nil
	}
	a := s.Answers[s.next]
	s.next++
	return a, nil
}
