package handlers

import (
	"context"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

func caller(ctx context.Context) (httpx.Caller, error) {
	c := httpx.CallerFromContext(ctx)
	if c.IsZero() {
		return c, errUnauthenticated
	}
	switch c.Role {
	case httpx.RolePatient, httpx.RoleDoctor, httpx.RoleAdmin:
		return c, nil
	}
	return c, errForbidden
}

func isParty(c httpx.Caller, a model.Appointment) bool {
	return (c.Role == httpx.RolePatient && c.UserID == a.PatientID) ||
		(c.Role == httpx.RoleDoctor && c.UserID == a.DoctorID)
}

// canView: either party or an admin.
func canView(c httpx.Caller, a model.Appointment) bool {
	return c.Role == httpx.RoleAdmin || isParty(c, a)
}

// canTreat: the appointment's doctor or an admin.
func canTreat(c httpx.Caller, a model.Appointment) bool {
	return c.Role == httpx.RoleAdmin || (c.Role == httpx.RoleDoctor && c.UserID == a.DoctorID)
}

// canManageDoctor: the doctor themself or an admin.
func canManageDoctor(c httpx.Caller, doctorID string) bool {
	return c.Role == httpx.RoleAdmin || (c.Role == httpx.RoleDoctor && c.UserID == doctorID)
}

// bookingPatient resolves whose appointment a caller may create. Patients
// book for themselves; admins for anyone; doctors not at all.
func bookingPatient(c httpx.Caller, requested string) (string, error) {
	switch c.Role {
	case httpx.RolePatient:
		if requested != "" && requested != c.UserID {
			return "", errForbidden
		}
		return c.UserID, nil
	case httpx.RoleAdmin:
		return requested, nil
	}
	return "", errForbidden
}
