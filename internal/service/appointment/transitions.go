package appointment

import (
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/service/notification"
)

type edge struct {
	From model.AppointmentStatus
	To   model.AppointmentStatus
}

type transitionRule struct {
	roles         []model.Role
	requiresNotes bool
	eventType     string
}

// transitionTable is the single authoritative legality table for appointment
// status changes. An edge absent from this map does not exist; no transition
// ever returns to an earlier state.
var transitionTable = map[edge]transitionRule{
	{model.AppointmentStatusRequested, model.AppointmentStatusApproved}: {
		roles:     []model.Role{model.RoleDoctor},
		eventType: notification.EventAppointmentApproved,
	},
	{model.AppointmentStatusRequested, model.AppointmentStatusRejected}: {
		roles:         []model.Role{model.RoleDoctor},
		requiresNotes: true,
		eventType:     notification.EventAppointmentRejected,
	},
	{model.AppointmentStatusRequested, model.AppointmentStatusCancelled}: {
		roles:     []model.Role{model.RolePatient},
		eventType: notification.EventAppointmentCancelled,
	},
	{model.AppointmentStatusApproved, model.AppointmentStatusActive}: {
		roles:     []model.Role{model.RoleDoctor},
		eventType: notification.EventAppointmentStarted,
	},
	{model.AppointmentStatusApproved, model.AppointmentStatusCancelled}: {
		roles:     []model.Role{model.RolePatient, model.RoleDoctor},
		eventType: notification.EventAppointmentCancelled,
	},
	{model.AppointmentStatusActive, model.AppointmentStatusCompleted}: {
		roles:         []model.Role{model.RoleDoctor},
		requiresNotes: true,
		eventType:     notification.EventAppointmentCompleted,
	},
}

// lookupTransition returns the rule for an edge, if the edge exists.
func lookupTransition(from, to model.AppointmentStatus) (transitionRule, bool) {
	rule, ok := transitionTable[edge{From: from, To: to}]
	return rule, ok
}

func (r transitionRule) allows(role model.Role) bool {
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}
