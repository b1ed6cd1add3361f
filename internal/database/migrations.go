package database

import (
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.EmergencyAccess{},
		&models.PermissionAudit{},
	)
}

// SeedData populates the permission catalog, system roles, and the root
// department. Seeding is idempotent: existing rows are never overwritten.
func SeedData(db *gorm.DB) error {
	if err := seedPermissions(db); err != nil {
		return err
	}
	if err := seedRoles(db); err != nil {
		return err
	}
	return seedRootDepartment(db)
}

func seedPermissions(db *gorm.DB) error {
	permissions := []models.Permission{
		{BaseModel: models.BaseModel{ID: "tickets.view"}, Name: "tickets.view", DisplayName: "View own tickets", Resource: "tickets", Action: "view", IsActive: true},
		{BaseModel: models.BaseModel{ID: "tickets.view_department"}, Name: "tickets.view_department", DisplayName: "View department tickets", Resource: "tickets", Action: "view_department", IsActive: true},
		{BaseModel: models.BaseModel{ID: "tickets.close"}, Name: "tickets.close", DisplayName: "Close tickets", Resource: "tickets", Action: "close", IsActive: true},
		{BaseModel: models.BaseModel{ID: "tickets.delete_all"}, Name: "tickets.delete_all", DisplayName: "Delete any ticket", Resource: "tickets", Action: "delete_all", IsActive: true},
		{BaseModel: models.BaseModel{ID: "departments.manage"}, Name: "departments.manage", DisplayName: "Manage departments", Resource: "departments", Action: "manage", IsActive: true},
		{BaseModel: models.BaseModel{ID: "roles.manage"}, Name: "roles.manage", DisplayName: "Manage roles", Resource: "roles", Action: "manage", IsActive: true},
		{BaseModel: models.BaseModel{ID: "users.manage"}, Name: "users.manage", DisplayName: "Manage users", Resource: "users", Action: "manage", IsActive: true},
		{BaseModel: models.BaseModel{ID: "emergency.grant"}, Name: "emergency.grant", DisplayName: "Grant emergency access", Resource: "emergency", Action: "grant", IsActive: true},
		{BaseModel: models.BaseModel{ID: "audit.view"}, Name: "audit.view", DisplayName: "View audit trail", Resource: "audit", Action: "view", IsActive: true},
		{BaseModel: models.BaseModel{ID: "system.configuration"}, Name: "system.configuration", DisplayName: "Manage system configuration", Resource: "system", Action: "configuration", IsActive: true},
	}

	for _, perm := range permissions {
		if err := db.Where(models.Permission{Name: perm.Name}).
			Attrs(perm).
			FirstOrCreate(&models.Permission{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedRoles(db *gorm.DB) error {
	roles := []struct {
		role        models.Role
		permissions []string
	}{
		{
			role: models.Role{
				BaseModel:      models.BaseModel{ID: "system_administrator"},
				Name:           "system_administrator",
				DisplayName:    "System Administrator",
				Description:    "Full operational control of the helpdesk",
				HierarchyLevel: 5,
				IsSystem:       true,
				IsActive:       true,
			},
			permissions: []string{
				"tickets.view", "tickets.view_department", "tickets.close", "tickets.delete_all",
				"departments.manage", "roles.manage", "users.manage",
				"emergency.grant", "audit.view", "system.configuration",
			},
		},
		{
			role: models.Role{
				BaseModel:      models.BaseModel{ID: "department_manager"},
				Name:           "department_manager",
				DisplayName:    "Department Manager",
				Description:    "Manages a department and its agents",
				HierarchyLevel: 2,
				IsSystem:       true,
				IsActive:       true,
			},
			permissions: []string{
				"tickets.view", "tickets.view_department", "tickets.close", "audit.view",
			},
		},
		{
			role: models.Role{
				BaseModel:      models.BaseModel{ID: "support_agent"},
				Name:           "support_agent",
				DisplayName:    "Support Agent",
				Description:    "Handles tickets within their department",
				HierarchyLevel: 1,
				IsSystem:       true,
				IsActive:       true,
			},
			permissions: []string{"tickets.view", "tickets.close"},
		},
		{
			role: models.Role{
				BaseModel:      models.BaseModel{ID: "viewer"},
				Name:           "viewer",
				DisplayName:    "Viewer",
				Description:    "Read-only access to own tickets",
				HierarchyLevel: 0,
				IsSystem:       true,
				IsActive:       true,
			},
			permissions: []string{"tickets.view"},
		},
	}

	for _, seed := range roles {
		var role models.Role
		if err := db.Where(models.Role{Name: seed.role.Name}).
			Attrs(seed.role).
			FirstOrCreate(&role).Error; err != nil {
			return err
		}

		count := db.Model(&role).Association("Permissions").Count()
		if count > 0 {
			continue
		}

		var perms []models.Permission
		if err := db.Where("name IN ?", seed.permissions).Find(&perms).Error; err != nil {
			return err
		}
		if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}

func seedRootDepartment(db *gorm.DB) error {
	root := models.Department{
		BaseModel:   models.BaseModel{ID: "customer-support"},
		Name:        "Customer Support",
		Description: "Top-level helpdesk organisation",
		Path:        "/",
		IsActive:    true,
	}
	return db.Where(models.Department{Name: root.Name}).
		Attrs(root).
		FirstOrCreate(&models.Department{}).Error
}
