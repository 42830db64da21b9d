package services

import (
	"sort"
	"strings"
	"sync"
)

const (
	AssignmentLeastLoaded    = "least-loaded"
	AssignmentRoundRobin     = "round-robin"
	AssignmentFirstAvailable = "first-available"
)

// AdminLoad is an admin candidate with the number of active disputes assigned to it.
type AdminLoad struct {
	AdminID        string
	ActiveDisputes int
}

// AdminAssigner picks the admin a new dispute is assigned to.
type AdminAssigner interface {
	Assign(candidates []AdminLoad) (string, bool)
}

func NewAdminAssigner(strategy string) AdminAssigner {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case AssignmentRoundRobin:
		return &RoundRobinAssigner{}
	case AssignmentFirstAvailable:
		return FirstAvailableAssigner{}
	default:
		return LeastLoadedAssigner{}
	}
}

type LeastLoadedAssigner struct{}

func (LeastLoadedAssigner) Assign(candidates []AdminLoad) (string, bool) {
	items := sortedCandidates(candidates)
	if len(items) == 0 {
		return "", false
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.ActiveDisputes < best.ActiveDisputes {
			best = item
		}
	}
	return best.AdminID, true
}

type RoundRobinAssigner struct {
	mu     sync.Mutex
	cursor int
}

func (a *RoundRobinAssigner) Assign(candidates []AdminLoad) (string, bool) {
	items := sortedCandidates(candidates)
	if len(items) == 0 {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pick := items[a.cursor%len(items)]
	a.cursor++
	return pick.AdminID, true
}

type FirstAvailableAssigner struct{}

func (FirstAvailableAssigner) Assign(candidates []AdminLoad) (string, bool) {
	items := sortedCandidates(candidates)
	if len(items) == 0 {
		return "", false
	}
	return items[0].AdminID, true
}

func sortedCandidates(candidates []AdminLoad) []AdminLoad {
	items := make([]AdminLoad, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.AdminID) != "" {
			items = append(items, candidate)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].AdminID < items[j].AdminID
	})
	return items
}
