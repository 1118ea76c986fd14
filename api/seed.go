/*
seed.go - Demo family loader

PURPOSE:
  Loads a small, realistic household so a fresh server has something to
  show: two children, a handful of quests in every lifecycle stage, and
  child accounts that can log in. Everything goes through the gateway, so
  the seeded state obeys the same rules as live traffic - verified quests
  were actually submitted and verified, and every coin on a balance has a
  matching ledger entry.

USAGE:
  POST /api/admin/seed with a parent session. Safe to call on an empty
  database; re-running it provisions a second copy of the family.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/quest-ledger/session"
)

// seedQuest describes one quest in the demo family and how far through
// the lifecycle it should be driven.
type seedQuest struct {
	title       string
	description string
	reward      int64
	submit      bool // drive PENDING -> SUBMITTED
	verify      bool // then SUBMITTED -> VERIFIED (credits the reward)
}

// seedChild is one demo child with a login and a quest list.
type seedChild struct {
	name        string
	avatarColor string
	email       string
	password    string
	quests      []seedQuest
}

var demoFamily = []seedChild{
	{
		name:        "Leo",
		avatarColor: "#4F8EF7",
		email:       "leo@family.local",
		password:    "leo-pass",
		quests: []seedQuest{
			{title: "Make the bed", description: "Every morning before school", reward: 10, submit: true, verify: true},
			{title: "Feed the cat", description: "Morning and evening", reward: 15, submit: true, verify: true},
			{title: "Clean Room", description: "Floor visible, desk clear", reward: 50, submit: true},
			{title: "Homework", description: "Math worksheet", reward: 20},
		},
	},
	{
		name:        "Mia",
		avatarColor: "#F76F4F",
		email:       "mia@family.local",
		password:    "mia-pass",
		quests: []seedQuest{
			{title: "Water the plants", description: "All of them, even the fern", reward: 10, submit: true, verify: true},
			{title: "Set the table", description: "Before dinner", reward: 5, submit: true},
			{title: "Practice piano", description: "20 minutes", reward: 25},
		},
	},
}

// LoadSeed provisions the demo family. Parent only.
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	created, err := h.loadFamily(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "seeded",
		"children": created,
	})
}

func (h *Handler) loadFamily(ctx context.Context, sess session.Session) ([]string, error) {
	var created []string

	for _, sc := range demoFamily {
		child, err := h.Gateway.ProvisionChild(ctx, sess, sc.name, sc.avatarColor)
		if err != nil {
			return nil, err
		}

		if _, err := h.Accounts.RegisterChild(ctx, sc.name, sc.email, sc.password, child.ID); err != nil {
			return nil, fmt.Errorf("seed child account %q: %w", sc.email, err)
		}

		for _, sq := range sc.quests {
			q, err := h.Gateway.CreateQuest(ctx, sess, child.ID, sq.title, sq.description, sq.reward)
			if err != nil {
				return nil, err
			}
			if !sq.submit {
				continue
			}
			if _, err := h.Gateway.SetQuestSubmission(ctx, sess, q.ID, true); err != nil {
				return nil, err
			}
			if !sq.verify {
				continue
			}
			if _, err := h.Gateway.VerifyQuest(ctx, sess, child.ID, q.ID, true); err != nil {
				return nil, err
			}
		}

		created = append(created, string(child.ID))
	}

	return created, nil
}
