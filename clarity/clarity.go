// Package clarity clusters friction signals for one store day.
package clarity

import (
	"sort"

	"storepulse/api/flow"
	"storepulse/api/models"
	"storepulse/api/normalizer"
	"storepulse/api/utils"
)

const sampleSize = 5

const unknownTarget = "(unknown)"

// Params select the session universe, the same way the flow does.
type Params struct {
	StoreID       string
	Day           string
	Mode          string
	LimitSessions int
}

// Verifications maps VerificationKey to a stored verification state.
type Verifications map[string]string

// Compute clusters the day's friction events from eligible sessions and joins
// the verification state onto each cluster.
func Compute(events []models.Event, sessions []models.SessionSummary, p Params, v Verifications) models.ClarityReport {
	if p.Mode == "" {
		p.Mode = flow.ModeAll
	}
	eligible := flow.Eligible(sessions, p.Mode, p.LimitSessions)
	ids := make(map[string]struct{}, len(eligible))
	for i := range eligible {
		ids[eligible[i].SessionID] = struct{}{}
	}

	clusters := Cluster(events, ids, p)
	return models.ClarityReport{
		Day:           p.Day,
		Mode:          p.Mode,
		TotalSessions: len(eligible),
		Clusters:      clusters,
		Verification:  Join(clusters, v),
		TopIssues:     []models.TopIssueRow{},
	}
}

type group struct {
	typ      string
	page     string
	key      string
	count    int
	sessions map[string]struct{}
	// scroll only: deepest max_percent per session
	depth map[string]float64
}

func (g *group) add(session string) {
	g.count++
	g.sessions[session] = struct{}{}
}

// Cluster groups friction events. Events from sessions outside eligible are
// ignored; a nil eligible set keeps every session.
func Cluster(events []models.Event, eligible map[string]struct{}, p Params) []models.ClarityCluster {
	groups := map[string]*group{}
	get := func(typ, page, key string) *group {
		id := models.VerificationKey(typ, page, key)
		g, ok := groups[id]
		if !ok {
			g = &group{typ: typ, page: page, key: key, sessions: map[string]struct{}{}, depth: map[string]float64{}}
			groups[id] = g
		}
		return g
	}

	for i := range events {
		e := &events[i]
		if eligible != nil {
			if _, ok := eligible[e.SessionID]; !ok {
				continue
			}
		}
		page := models.Deref(e.PagePath)
		switch normalizer.Classify(e.EventName) {
		case normalizer.KindRageClick:
			get(models.SignalRageClicks, page, target(e)).add(e.SessionID)
		case normalizer.KindDeadClick:
			get(models.SignalDeadClicks, page, target(e)).add(e.SessionID)
		case normalizer.KindJSError:
			get(models.SignalJSErrors, page, Signature(e.ParseData().Message)).add(e.SessionID)
		case normalizer.KindFormInvalid:
			d := e.ParseData()
			get(models.SignalFormInvalid, page, d.FieldType+":"+d.FieldName).add(e.SessionID)
		case normalizer.KindScroll:
			g := get(models.SignalScrollDropoff, page, page)
			g.add(e.SessionID)
			pct := 0.0
			if mp := e.ParseData().MaxPercent; mp != nil {
				pct = *mp
			}
			if cur, ok := g.depth[e.SessionID]; !ok || pct > cur {
				g.depth[e.SessionID] = pct
			}
		}
	}

	out := make([]models.ClarityCluster, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.cluster(p))
	}
	sortClusters(out)
	return out
}

func target(e *models.Event) string {
	if k := e.ParseData().TargetKey; k != "" {
		return k
	}
	return unknownTarget
}

func (g *group) cluster(p Params) models.ClarityCluster {
	c := models.ClarityCluster{
		Type:             g.typ,
		Page:             g.page,
		GroupKey:         g.key,
		SessionsAffected: len(g.sessions),
		Count:            g.count,
	}
	pool := utils.SortedKeys(g.sessions)

	if g.typ == models.SignalScrollDropoff {
		sd := &models.ScrollDepth{TotalSessions: len(g.depth)}
		var shallow []string
		for _, id := range pool {
			d := g.depth[id]
			if d >= 50 {
				sd.Reached50++
			} else {
				shallow = append(shallow, id)
			}
			if d >= 75 {
				sd.Reached75++
			}
			if d >= 90 {
				sd.Reached90++
			}
		}
		c.Scroll = sd
		c.SessionsAffected = sd.TotalSessions - sd.Reached50
		c.Count = sd.TotalSessions
		pool = shallow
	}

	c.SampleSessions = utils.Reservoir(pool, sampleSize, utils.Seed(p.StoreID, p.Day, g.typ, g.key))
	return c
}

// sortClusters orders by type, then by sessions affected and count, then by
// page and group key.
func sortClusters(cs []models.ClarityCluster) {
	order := map[string]int{}
	for i, t := range models.SignalTypes {
		order[t] = i
	}
	sort.Slice(cs, func(i, j int) bool {
		a, b := &cs[i], &cs[j]
		if a.Type != b.Type {
			return order[a.Type] < order[b.Type]
		}
		if a.SessionsAffected != b.SessionsAffected {
			return a.SessionsAffected > b.SessionsAffected
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.GroupKey < b.GroupKey
	})
}

// Join fills in each cluster's verification state and tallies them.
// Verifiable clusters without a stored state are unverified.
func Join(cs []models.ClarityCluster, v Verifications) models.VerificationSummary {
	var sum models.VerificationSummary
	for i := range cs {
		c := &cs[i]
		if !models.Verifiable(c.Type) {
			c.Verification = models.VerificationNotApplicable
		} else {
			switch state := v[c.VerificationKey()]; state {
			case models.VerificationConfirmed, models.VerificationFalsePositive:
				c.Verification = state
			default:
				c.Verification = models.VerificationUnverified
			}
		}
		switch c.Verification {
		case models.VerificationConfirmed:
			sum.Confirmed++
		case models.VerificationFalsePositive:
			sum.FalsePositive++
		case models.VerificationUnverified:
			sum.Unverified++
		default:
			sum.NotApplicable++
		}
	}
	return sum
}
