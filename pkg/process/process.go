// Package process discovers business processes: schema-time discovery
// from structural signals (status columns, from/to transition pairs,
// co-located timestamps, FK chains) and result-time construction of a
// ProcessFlow from a query result that carries transition or aggregate
// data.
package process

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// DiscoveredProcess is a schema-level business process inferred from
// structural signals.
type DiscoveredProcess struct {
	Name              string
	MainTable         string
	HistoryTable      string
	StatusColumn      string
	TransitionPattern string
	Evidence          []string
	Confidence        float64
	Stages            []string // ordered status values, when known
}

// Options bounds discovery.
type Options struct {
	MaxTables      int
	MaxCardinality int
	CacheTTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxTables <= 0 {
		o.MaxTables = 50
	}
	if o.MaxCardinality <= 0 {
		o.MaxCardinality = 30
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 600 * time.Second
	}
	return o
}

var statusColumnPattern = regexp.MustCompile(`(?i)^(status|state|stage|step|phase)$|(_status|_state|_stage|_step|_phase)$|^current_`)
var fromColumnPattern = regexp.MustCompile(`(?i)^from_(\w+)$`)
var toColumnPattern = regexp.MustCompile(`(?i)^to_(\w+)$`)
var timestampColumnPattern = regexp.MustCompile(`(?i)(_at|_time)$|^(created_at|updated_at)$`)

// Discoverer runs schema-time discovery and caches results per fingerprint.
type Discoverer struct {
	Opts  Options
	clock clockwork.Clock

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	processes []DiscoveredProcess
	expires   time.Time
}

// New constructs a Discoverer using the real wall clock.
func New(opts Options) *Discoverer {
	return NewWithClock(opts, clockwork.NewRealClock())
}

// NewWithClock constructs a Discoverer with an injected clock, so TTL
// expiry is testable without sleeping.
func NewWithClock(opts Options, clock clockwork.Clock) *Discoverer {
	return &Discoverer{Opts: opts.withDefaults(), clock: clock, cache: make(map[string]cacheEntry)}
}

// Discover returns cached DiscoveredProcesses for fingerprint if fresh,
// otherwise recomputes from snapshot and caches the result. Invalidate
// must be called by the caller whenever a schema diff is detected.
func (d *Discoverer) Discover(fingerprint string, snapshot model.SchemaSnapshot, categorical model.CategoricalValues) []DiscoveredProcess {
	d.mu.RLock()
	entry, ok := d.cache[fingerprint]
	d.mu.RUnlock()
	if ok && d.clock.Now().Before(entry.expires) {
		return entry.processes
	}

	processes := d.discover(snapshot, categorical)

	d.mu.Lock()
	d.cache[fingerprint] = cacheEntry{processes: processes, expires: d.clock.Now().Add(d.Opts.CacheTTL)}
	d.mu.Unlock()
	return processes
}

// Invalidate evicts the cached result for fingerprint, e.g. on schema diff.
func (d *Discoverer) Invalidate(fingerprint string) {
	d.mu.Lock()
	delete(d.cache, fingerprint)
	d.mu.Unlock()
}

func (d *Discoverer) discover(snapshot model.SchemaSnapshot, categorical model.CategoricalValues) []DiscoveredProcess {
	var out []DiscoveredProcess
	tables := snapshot.Tables
	if len(tables) > d.Opts.MaxTables {
		tables = tables[:d.Opts.MaxTables]
	}

	fkChains := findFKChains(snapshot)

	for _, t := range tables {
		var evidence []string
		confidence := 0.0
		statusCol := ""
		var stages []string

		for _, c := range t.Columns {
			if statusColumnPattern.MatchString(c.Name) {
				card, known := columnCardinality(categorical, t.Name, c.Name)
				if !known || card <= d.Opts.MaxCardinality {
					statusCol = c.Name
					confidence += 0.35
					evidence = append(evidence, "status-like column "+c.Name)
					if known {
						stages = categorical.Values[model.TableColumn{Table: t.Name, Column: c.Name}]
					}
				}
			}
		}

		transitionPattern := ""
		fromTargets := map[string]bool{}
		toTargets := map[string]bool{}
		for _, c := range t.Columns {
			if m := fromColumnPattern.FindStringSubmatch(c.Name); m != nil {
				fromTargets[m[1]] = true
			}
			if m := toColumnPattern.FindStringSubmatch(c.Name); m != nil {
				toTargets[m[1]] = true
			}
		}
		for target := range fromTargets {
			if toTargets[target] {
				transitionPattern = target
				confidence += 0.3
				evidence = append(evidence, "from_"+target+"/to_"+target+" transition pair")
				break
			}
		}

		hasTimestamps := false
		for _, c := range t.Columns {
			if timestampColumnPattern.MatchString(c.Name) {
				hasTimestamps = true
				break
			}
		}
		if hasTimestamps && (statusCol != "" || transitionPattern != "") {
			confidence += 0.15
			evidence = append(evidence, "co-located created/updated timestamps")
		}

		if chain, ok := fkChains[t.Name]; ok && len(chain) >= 2 {
			confidence += 0.2
			evidence = append(evidence, "FK chain "+strings.Join(chain, "->"))
		}

		if confidence >= 0.4 {
			out = append(out, DiscoveredProcess{
				Name:              humanize(t.Name),
				MainTable:         t.Name,
				HistoryTable:      findHistoryTable(snapshot, t.Name),
				StatusColumn:      statusCol,
				TransitionPattern: transitionPattern,
				Evidence:          evidence,
				Confidence:        confidence,
				Stages:            stages,
			})
		}
	}
	return out
}

func columnCardinality(cv model.CategoricalValues, table, column string) (int, bool) {
	if cv.Values == nil {
		return 0, false
	}
	vals, ok := cv.Values[model.TableColumn{Table: table, Column: column}]
	return len(vals), ok
}

func findHistoryTable(snapshot model.SchemaSnapshot, mainTable string) string {
	for _, t := range snapshot.Tables {
		if t.Name == mainTable+"_history" || t.Name == "hist_"+mainTable {
			return t.Name
		}
	}
	return ""
}

// findFKChains returns, per table, the longest directed FK chain
// A->B->C... starting at that table, found via graph traversal over the
// foreign-key relation.
func findFKChains(snapshot model.SchemaSnapshot) map[string][]string {
	adjacency := map[string][]string{}
	for _, t := range snapshot.Tables {
		for _, fk := range t.ForeignKeys {
			adjacency[t.Name] = append(adjacency[t.Name], fk.RefTable)
		}
	}
	chains := map[string][]string{}
	for _, t := range snapshot.Tables {
		visited := map[string]bool{t.Name: true}
		chain := []string{t.Name}
		cur := t.Name
		for {
			next := adjacency[cur]
			if len(next) == 0 || visited[next[0]] {
				break
			}
			cur = next[0]
			visited[cur] = true
			chain = append(chain, cur)
		}
		if len(chain) >= 2 {
			chains[t.Name] = chain
		}
	}
	return chains
}

func humanize(tableName string) string {
	name := strings.TrimSuffix(tableName, "s")
	name = strings.ReplaceAll(name, "_", " ")
	words := strings.Fields(name)
	if len(words) > 0 {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ") + " process"
}
