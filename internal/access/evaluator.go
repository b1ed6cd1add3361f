package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
)

// Query names the permission being evaluated, either directly or as a
// resource/action pair. DepartmentID optionally scopes the check to the
// department owning the target resource.
type Query struct {
	Permission   string
	Resource     string
	Action       string
	DepartmentID string
}

// PermissionName resolves the query to a catalog permission name.
func (q Query) PermissionName() string {
	if name := strings.TrimSpace(q.Permission); name != "" {
		return name
	}
	resource := strings.TrimSpace(q.Resource)
	action := strings.TrimSpace(q.Action)
	if resource == "" || action == "" {
		return ""
	}
	return resource + "." + action
}

// Evaluator is the single decision point for "does user U currently have
// permission P". It is a pure read path: every expiry comparison happens
// against the injected clock at call time, and no in-process caches are
// kept, so a revoked or expired grant stops conferring access immediately.
type Evaluator struct {
	db      *gorm.DB
	catalog *Catalog
	ledger  *Ledger
	now     func() time.Time
}

// EvaluatorOption customises the Evaluator.
type EvaluatorOption func(*Evaluator)

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator constructs an evaluator backed by the provided database.
func NewEvaluator(db *gorm.DB, opts ...EvaluatorOption) (*Evaluator, error) {
	if db == nil {
		return nil, errors.New("access evaluator: db is required")
	}

	eval := &Evaluator{db: db, now: time.Now}
	for _, opt := range opts {
		opt(eval)
	}

	var err error
	if eval.catalog, err = NewCatalog(db); err != nil {
		return nil, err
	}
	if eval.ledger, err = NewLedger(db, WithLedgerNow(func() time.Time { return eval.now() })); err != nil {
		return nil, err
	}
	return eval, nil
}

// Evaluate runs the decision chain in order, short-circuiting on the first
// grant. Denials are returned as data; an error means the evaluation itself
// could not be carried out.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, q Query) (Decision, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, errors.New("access evaluator: user id is required")
	}

	name := q.PermissionName()
	if name == "" {
		return Decision{}, errors.New("access evaluator: permission or resource/action is required")
	}

	var user models.User
	if err := e.db.WithContext(ctx).
		Preload("Department").
		First(&user, "id = ?", userID).Error; err != nil {
		return Decision{}, fmt.Errorf("access evaluator: load user: %w", err)
	}

	if !user.IsActive {
		return deny(name, ReasonNoGrant), nil
	}
	if user.IsRoot {
		return allow(name, ReasonRootGrant), nil
	}

	perm, err := e.catalog.PermissionByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			return deny(name, ReasonNoGrant), nil
		}
		return Decision{}, err
	}
	if !perm.IsActive {
		return deny(name, ReasonPermissionInactive), nil
	}

	directly, err := e.hasDirectGrant(ctx, userID, perm.ID)
	if err != nil {
		return Decision{}, err
	}
	if directly {
		return allow(name, ReasonDirectGrant), nil
	}

	granted, err := e.roleGrants(ctx, userID, perm.ID)
	if err != nil {
		return Decision{}, err
	}
	if granted {
		if strings.HasSuffix(perm.Action, "_department") && q.DepartmentID != "" {
			ok, scopeErr := e.inDepartmentScope(ctx, &user, q.DepartmentID)
			if scopeErr != nil {
				return Decision{}, scopeErr
			}
			if !ok {
				return deny(name, ReasonDepartmentScopeDenied), nil
			}
		}
		return allow(name, ReasonRoleGrant), nil
	}

	return e.emergencyDecision(ctx, userID, name)
}

// hasDirectGrant checks explicit user-to-permission attachments.
func (e *Evaluator) hasDirectGrant(ctx context.Context, userID, permissionID string) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Table("user_permissions").
		Where("user_id = ? AND permission_id = ?", userID, permissionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("access evaluator: direct grants: %w", err)
	}
	return count > 0, nil
}

// roleGrants checks whether any in-effect assignment to an active role
// attaches the permission.
func (e *Evaluator) roleGrants(ctx context.Context, userID, permissionID string) (bool, error) {
	roles, err := e.ledger.ActiveRolesFor(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, role := range roles {
		perms, err := e.catalog.EffectivePermissions(ctx, role.ID)
		if err != nil {
			return false, err
		}
		for _, perm := range perms {
			if perm.ID == permissionID {
				return true, nil
			}
		}
	}
	return false, nil
}

// inDepartmentScope requires the user's department to equal the target
// department or to be one of its ancestors.
func (e *Evaluator) inDepartmentScope(ctx context.Context, user *models.User, targetID string) (bool, error) {
	if user.DepartmentID == nil || *user.DepartmentID == "" {
		return false, nil
	}
	if *user.DepartmentID == targetID {
		return true, nil
	}

	var target models.Department
	if err := e.db.WithContext(ctx).First(&target, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("access evaluator: load target department: %w", err)
	}

	return strings.Contains(target.Path, "/"+*user.DepartmentID+"/"), nil
}

// emergencyDecision resolves break-glass grants. A grant whose single-use
// token has already been consumed denies with a distinct reason so replays
// are visible in audit trails.
func (e *Evaluator) emergencyDecision(ctx context.Context, userID, permission string) (Decision, error) {
	var grants []models.EmergencyAccess
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, e.now()).
		Find(&grants).Error
	if err != nil {
		return Decision{}, fmt.Errorf("access evaluator: load emergency grants: %w", err)
	}

	exhausted := false
	for _, grant := range grants {
		if !grant.Covers(permission) {
			continue
		}
		if grant.Token != nil && grant.UsedAt != nil {
			exhausted = true
			continue
		}
		return allow(permission, ReasonEmergencyOverride), nil
	}

	if exhausted {
		return deny(permission, ReasonEmergencyExhausted), nil
	}
	return deny(permission, ReasonNoGrant), nil
}

// UserPermissions returns the distinct permission names currently granted to
// the user through any channel, sorted for stable API output.
func (e *Evaluator) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := e.db.WithContext(ctx).
		Preload("Permissions", "is_active = ?", true).
		First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("access evaluator: load user: %w", err)
	}

	names := make(map[string]struct{})

	if user.IsRoot {
		var all []models.Permission
		if err := e.db.WithContext(ctx).Where("is_active = ?", true).Find(&all).Error; err != nil {
			return nil, fmt.Errorf("access evaluator: load catalog: %w", err)
		}
		for _, perm := range all {
			names[perm.Name] = struct{}{}
		}
		return sortedNames(names), nil
	}

	for _, perm := range user.Permissions {
		names[perm.Name] = struct{}{}
	}

	roles, err := e.ledger.ActiveRolesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		perms, err := e.catalog.EffectivePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, perm := range perms {
			names[perm.Name] = struct{}{}
		}
	}

	var grants []models.EmergencyAccess
	if err := e.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, e.now()).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("access evaluator: load emergency grants: %w", err)
	}
	for _, grant := range grants {
		if grant.Token != nil && grant.UsedAt != nil {
			continue
		}
		granted, err := grant.PermissionNames()
		if err != nil {
			return nil, fmt.Errorf("access evaluator: decode emergency grant %s: %w", grant.ID, err)
		}
		for _, name := range granted {
			names[name] = struct{}{}
		}
	}

	return sortedNames(names), nil
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
