package commitlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Marker names one field of the log format
type Marker string

const (
	MarkerHash           Marker = "[hash]"
	MarkerCommitterName  Marker = "[committer_name]"
	MarkerCommitterEmail Marker = "[committer_email]"
	MarkerTimestamp      Marker = "[timestamp]"
	MarkerMessage        Marker = "[message]"
	MarkerFiles          Marker = "[files]"
)

// Format is a log format with salted field markers
type Format struct {
	salt string
}

// NewFormat creates a Format with a random salt
func NewFormat() Format {
	return NewFormatWithSalt(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewFormatWithSalt creates a Format with a fixed salt
func NewFormatWithSalt(salt string) Format {
	return Format{salt: salt}
}

// Marker returns the salted marker text for m
func (f Format) Marker(m Marker) string {
	return f.salt + string(m)
}

// String returns the value for git log --format=
func (f Format) String() string {
	return f.Marker(MarkerHash) + "%H%n" +
		f.Marker(MarkerCommitterName) + "%cN%n" +
		f.Marker(MarkerCommitterEmail) + "%ce%n" +
		f.Marker(MarkerTimestamp) + "%ct%n" +
		f.Marker(MarkerMessage) + "%B%n" +
		f.Marker(MarkerFiles)
}

// NewParser creates a parser for output in this format. At most max commits
// are recorded; max <= 0 means no limit. File lists of commits in shallows
// are dropped.
func (f Format) NewParser(shallows ShallowSet, max int) *Parser {
	if shallows == nil {
		shallows = ShallowSet{}
	}
	return &Parser{format: f, shallows: shallows, max: max}
}

type state int

const (
	stateInfo state = iota
	stateMessage
	stateFiles
)

// Parser is a line driven state machine over salted log output
type Parser struct {
	format   Format
	shallows ShallowSet
	max      int

	state         state
	commits       []*Commit
	current       *Commit
	committerName string
	message       []string
	skipped       int
}

// HandleLine consumes one line of log output
func (p *Parser) HandleLine(line string) {
	if p.state == stateMessage {
		if content, ok := p.cut(line, MarkerFiles); ok {
			p.finishMessage()
			p.state = stateFiles
			p.addFile(content)
			return
		}
		p.message = append(p.message, line)
		return
	}

	if content, ok := p.cut(line, MarkerHash); ok {
		p.startCommit(strings.TrimSpace(content))
		return
	}
	if p.current == nil {
		return
	}

	if p.state == stateFiles {
		p.addFile(line)
		return
	}

	if content, ok := p.cut(line, MarkerCommitterName); ok {
		p.committerName = strings.TrimSpace(content)
		if p.committerName != "" {
			p.current.Author = Author{Name: p.committerName}
		}
	} else if content, ok := p.cut(line, MarkerCommitterEmail); ok {
		if p.committerName != "" {
			p.current.Author = Author{Name: p.committerName, Email: strings.TrimSpace(content)}
		}
	} else if content, ok := p.cut(line, MarkerTimestamp); ok {
		if seconds, err := strconv.ParseInt(strings.TrimSpace(content), 10, 64); err == nil {
			p.current.Date = time.Unix(seconds, 0)
		}
	} else if content, ok := p.cut(line, MarkerMessage); ok {
		p.message = []string{content}
		p.state = stateMessage
	} else if _, ok := p.cut(line, MarkerFiles); ok {
		// no message marker was seen
		p.state = stateFiles
	}
}

func (p *Parser) cut(line string, m Marker) (string, bool) {
	return strings.CutPrefix(line, p.format.Marker(m))
}

func (p *Parser) startCommit(id string) {
	p.state = stateInfo
	p.committerName = ""
	p.message = nil
	if p.max > 0 && len(p.commits) >= p.max {
		p.current = nil
		p.skipped++
		return
	}
	p.current = &Commit{ID: id, Author: UnknownAuthor}
	p.commits = append(p.commits, p.current)
}

func (p *Parser) finishMessage() {
	if p.current != nil {
		p.current.Message = strings.TrimRight(strings.Join(p.message, "\n"), "\n")
	}
	p.message = nil
}

func (p *Parser) addFile(line string) {
	path := strings.TrimSpace(line)
	if path == "" || p.current == nil || p.shallows.Contains(p.current.ID) {
		return
	}
	p.current.Files = append(p.current.Files, path)
}

// Commits returns copies of the recorded commits in log order
func (p *Parser) Commits() []Commit {
	if p.state == stateMessage {
		p.finishMessage()
		p.state = stateInfo
	}
	out := make([]Commit, 0, len(p.commits))
	for _, c := range p.commits {
		out = append(out, c.clone())
	}
	return out
}

// Skipped returns the number of commits dropped because of the limit
func (p *Parser) Skipped() int {
	return p.skipped
}
