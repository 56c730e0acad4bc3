package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storepulse/api/models"
)

func ids(events []models.Event) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].StoreID + "/" + events[i].ID
	}
	return out
}

func TestIdsByStore(t *testing.T) {
	got := idsByStore([]models.Event{
		ev("a", "shop", "s1", 0),
		ev("b", "other", "s2", 0),
		ev("c", "shop", "s1", time.Second),
	})
	assert.Equal(t, map[string][]string{"shop": {"a", "c"}, "other": {"b"}}, got)
}

func TestFreshEvents_DropsStoredAndRepeatedIDs(t *testing.T) {
	batch := []models.Event{
		ev("a", "shop", "s1", 0),
		ev("b", "shop", "s1", time.Second),
		ev("b", "shop", "s1", time.Second),
		ev("a", "other", "s9", 0),
		ev("c", "shop", "s2", 2*time.Second),
	}
	stored := map[string]map[string]struct{}{
		"shop": {"a": {}},
	}

	fresh := freshEvents(batch, stored)
	assert.Equal(t, []string{"shop/b", "other/a", "shop/c"}, ids(fresh))
	assert.Equal(t, 2, len(batch)-len(fresh), "one stored id and one in-batch repeat")
}

func TestFreshEvents_AllKnown(t *testing.T) {
	stored := map[string]map[string]struct{}{"shop": {"a": {}}}
	assert.Empty(t, freshEvents([]models.Event{ev("a", "shop", "s1", 0)}, stored))
}
