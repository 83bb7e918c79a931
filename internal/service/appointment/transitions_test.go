package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/portal-api/internal/model"
)

func TestTransitionTable(t *testing.T) {
	t.Run("terminal statuses have no outgoing edges", func(t *testing.T) {
		terminals := []model.AppointmentStatus{
			model.AppointmentStatusCompleted,
			model.AppointmentStatusCancelled,
			model.AppointmentStatusRejected,
		}
		all := []model.AppointmentStatus{
			model.AppointmentStatusRequested,
			model.AppointmentStatusApproved,
			model.AppointmentStatusActive,
			model.AppointmentStatusCompleted,
			model.AppointmentStatusCancelled,
			model.AppointmentStatusRejected,
		}
		for _, from := range terminals {
			for _, to := range all {
				_, ok := lookupTransition(from, to)
				assert.False(t, ok, "unexpected edge %s -> %s", from, to)
			}
		}
	})

	t.Run("no edge returns to an earlier state", func(t *testing.T) {
		order := map[model.AppointmentStatus]int{
			model.AppointmentStatusRequested: 0,
			model.AppointmentStatusApproved:  1,
			model.AppointmentStatusActive:    2,
			model.AppointmentStatusCompleted: 3,
			model.AppointmentStatusCancelled: 3,
			model.AppointmentStatusRejected:  3,
		}
		for e := range transitionTable {
			assert.Greater(t, order[e.To], order[e.From], "edge %s -> %s goes backwards", e.From, e.To)
		}
	})

	t.Run("every rule names roles and an event", func(t *testing.T) {
		for e, rule := range transitionTable {
			assert.NotEmpty(t, rule.roles, "edge %s -> %s has no roles", e.From, e.To)
			assert.NotEmpty(t, rule.eventType, "edge %s -> %s has no event", e.From, e.To)
		}
	})

	t.Run("admins never appear in lifecycle rules", func(t *testing.T) {
		for e, rule := range transitionTable {
			assert.False(t, rule.allows(model.RoleAdmin), "edge %s -> %s allows admin", e.From, e.To)
		}
	})

	t.Run("cancellation before approval is patient-only", func(t *testing.T) {
		rule, ok := lookupTransition(model.AppointmentStatusRequested, model.AppointmentStatusCancelled)
		assert.True(t, ok)
		assert.True(t, rule.allows(model.RolePatient))
		assert.False(t, rule.allows(model.RoleDoctor))
	})

	t.Run("either party may cancel an approved appointment", func(t *testing.T) {
		rule, ok := lookupTransition(model.AppointmentStatusApproved, model.AppointmentStatusCancelled)
		assert.True(t, ok)
		assert.True(t, rule.allows(model.RolePatient))
		assert.True(t, rule.allows(model.RoleDoctor))
	})
}
