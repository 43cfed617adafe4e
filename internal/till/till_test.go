package till

import (
	"testing"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

func role(id int64, privs ...models.Privilege) models.Role {
	return models.Role{ID: id, Name: "role", Privileges: privs}
}

func TestCheckUserLoginFiltersByProfileAndPrivilege(t *testing.T) {
	cashier := role(1, models.PrivilegeCashier, models.PrivilegeTerminalLogin)
	supervisor := role(2, models.PrivilegeCashierManagement, models.PrivilegeSupervisedTerminalLogin)
	notOnProfile := role(3, models.PrivilegeTerminalLogin)

	profileRoles := []models.Role{cashier, supervisor}

	eligible, err := CheckUserLogin([]models.Role{cashier, supervisor, notOnProfile}, profileRoles, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible roles, got %d: %v", len(eligible), eligible)
	}
}

func TestCheckUserLoginRequiresSupervisorWithoutDirectLogin(t *testing.T) {
	supervisedOnly := role(1, models.PrivilegeSupervisedTerminalLogin)
	profileRoles := []models.Role{supervisedOnly}

	if _, err := CheckUserLogin([]models.Role{supervisedOnly}, profileRoles, nil); err == nil {
		t.Fatal("expected access denied without a logged-in supervisor")
	}
	apiErr, ok := apierrors.As(callCheckUserLoginErr(supervisedOnly, profileRoles))
	if !ok || apiErr.Kind != apierrors.KindAccessDenied {
		t.Fatalf("expected AccessDenied, got %v", apiErr)
	}

	supervisor := &models.CurrentUser{Privileges: []models.Privilege{models.PrivilegeTerminalLogin}}
	eligible, err := CheckUserLogin([]models.Role{supervisedOnly}, profileRoles, supervisor)
	if err != nil {
		t.Fatalf("expected login allowed when a supervisor is present, got %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected the supervised role to be eligible, got %v", eligible)
	}
}

func callCheckUserLoginErr(candidate models.Role, profileRoles []models.Role) error {
	_, err := CheckUserLogin([]models.Role{candidate}, profileRoles, nil)
	return err
}
