package access

import (
	"testing"

	"stockflow/backend/internal/domain"
)

func TestRouteMatrix(t *testing.T) {
	staffRoutes := map[RouteKey]bool{
		RouteDashboard: true,
		RouteProducts:  true,
		RouteSales:     true,
	}

	allRouteKeys := []RouteKey{
		RouteDashboard, RouteProducts, RouteCategories, RouteSuppliers,
		RoutePurchases, RouteSales, RouteReports, RouteUsers,
		RouteBackup, RouteSettings,
	}

	for _, route := range allRouteKeys {
		if !CanAccess(route, domain.RoleOwner) {
			t.Fatalf("owner must access %s", route)
		}
		if !CanAccess(route, domain.RoleManager) {
			t.Fatalf("manager must access %s", route)
		}
		if got := CanAccess(route, domain.RoleStaff); got != staffRoutes[route] {
			t.Fatalf("staff on %s: expected %v, got %v", route, staffRoutes[route], got)
		}
	}
}

func TestCanAccessUnknownInputs(t *testing.T) {
	if CanAccess("not-a-route", domain.RoleOwner) {
		t.Fatalf("unknown route must be denied")
	}
	if CanAccess(RouteDashboard, "superadmin") {
		t.Fatalf("unknown role must be denied")
	}
	if CanAccess("", "") {
		t.Fatalf("empty inputs must be denied")
	}
}

func TestRolesReturnsCopy(t *testing.T) {
	roles := Roles(RouteDashboard)
	if len(roles) != 3 {
		t.Fatalf("dashboard should list 3 roles, got %d", len(roles))
	}
	roles[0] = "mutated"
	if !CanAccess(RouteDashboard, domain.RoleOwner) {
		t.Fatalf("mutating the returned slice must not change the matrix")
	}
}

func TestActionChecks(t *testing.T) {
	checks := map[string]func(domain.Role) bool{
		"manage users":     CanManageUsers,
		"manage catalog":   CanManageCatalog,
		"edit prices":      CanEditProductPrices,
		"delete products":  CanDeleteProducts,
		"create purchases": CanCreatePurchases,
		"give discounts":   CanGiveDiscounts,
	}

	for name, check := range checks {
		if !check(domain.RoleOwner) || !check(domain.RoleManager) {
			t.Fatalf("%s: owner and manager must be allowed", name)
		}
		if check(domain.RoleStaff) {
			t.Fatalf("%s: staff must be denied", name)
		}
	}
}

func TestRoleHome(t *testing.T) {
	cases := map[domain.Role]string{
		domain.RoleOwner:   "/owner/dashboard",
		domain.RoleManager: "/manager/dashboard",
		domain.RoleStaff:   "/staff/dashboard",
		"unknown":          "/staff/dashboard",
	}
	for role, want := range cases {
		if got := RoleHome(role); got != want {
			t.Fatalf("home for %s: expected %s, got %s", role, want, got)
		}
	}
}
