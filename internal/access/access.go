// Package access is the single canonical role policy: one route matrix plus
// action-level checks, everything else derives from it.
package access

import "stockflow/backend/internal/domain"

type RouteKey = string

const (
	RouteDashboard  RouteKey = "dashboard"
	RouteProducts   RouteKey = "products"
	RouteCategories RouteKey = "categories"
	RouteSuppliers  RouteKey = "suppliers"
	RoutePurchases  RouteKey = "purchases"
	RouteSales      RouteKey = "sales"
	RouteReports    RouteKey = "reports"
	RouteUsers      RouteKey = "users"
	RouteBackup     RouteKey = "backup"
	RouteSettings   RouteKey = "settings"
)

var allRoles = []domain.Role{domain.RoleOwner, domain.RoleManager, domain.RoleStaff}
var managerUp = []domain.Role{domain.RoleOwner, domain.RoleManager}

// routeAccess is total over every RouteKey; CanAccess answers false for
// anything outside it, so unknown inputs never panic.
var routeAccess = map[RouteKey][]domain.Role{
	RouteDashboard:  allRoles,
	RouteProducts:   allRoles,
	RouteCategories: managerUp,
	RouteSuppliers:  managerUp,
	RoutePurchases:  managerUp,
	RouteSales:      allRoles,
	RouteReports:    managerUp,
	RouteUsers:      managerUp,
	RouteBackup:     managerUp,
	RouteSettings:   managerUp,
}

func CanAccess(route RouteKey, role domain.Role) bool {
	for _, allowed := range routeAccess[route] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Roles returns every role allowed on the route, for wiring route guards.
func Roles(route RouteKey) []domain.Role {
	return append([]domain.Role(nil), routeAccess[route]...)
}

func isManagerUp(role domain.Role) bool {
	return role == domain.RoleOwner || role == domain.RoleManager
}

// Action-level checks, one per privileged operation.
func CanManageUsers(role domain.Role) bool       { return isManagerUp(role) }
func CanManageCatalog(role domain.Role) bool     { return isManagerUp(role) }
func CanEditProductPrices(role domain.Role) bool { return isManagerUp(role) }
func CanDeleteProducts(role domain.Role) bool    { return isManagerUp(role) }
func CanCreatePurchases(role domain.Role) bool   { return isManagerUp(role) }
func CanGiveDiscounts(role domain.Role) bool     { return isManagerUp(role) }

// RoleHome is the landing route for a role after login.
func RoleHome(role domain.Role) string {
	switch role {
	case domain.RoleOwner:
		return "/owner/dashboard"
	case domain.RoleManager:
		return "/manager/dashboard"
	default:
		return "/staff/dashboard"
	}
}
