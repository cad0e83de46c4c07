package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/ordering"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type UserService struct {
	db    *gorm.DB
	order *ordering.Engine
	now   func() time.Time
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, order: ordering.NewEngine(db), now: time.Now}
}

type CreateUserInput struct {
	Name         string
	Email        string
	Password     string
	Role         model.Role
	Company      *string
	DepartmentID *uint64
}

type UserPatch struct {
	Name         *string
	Email        *string
	Password     *string
	Role         *model.Role
	Company      model.Nullable[string]
	DepartmentID model.Nullable[uint64]
}

// List returns active users, optionally of one type, in board order.
func (s *UserService) List(ctx context.Context, actor *model.User, typ model.UserType) ([]model.User, error) {
	if err := access.RequireInternal(actor); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx)
	if typ != "" {
		tx = tx.Scopes(ordering.UserTypeScope(typ))
	}
	users := []model.User{}
	if err := tx.Order("display_order ASC").Order("name ASC").Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListDeactivated returns users that can be restored or purged.
func (s *UserService) ListDeactivated(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := access.RequireInternal(actor); err != nil {
		return nil, err
	}
	users := []model.User{}
	err := s.db.WithContext(ctx).Unscoped().Where("deleted_at IS NOT NULL").
		Order("deleted_at DESC").Order("id ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list deactivated users: %w", err)
	}
	return users, nil
}

// Get returns an active user. Clients can only look themselves up.
func (s *UserService) Get(ctx context.Context, actor *model.User, id uint64) (*model.User, error) {
	if actor.IsClient() && actor.ID != id {
		return nil, errs.Forbidden("you can only view your own profile")
	}
	return s.Active(ctx, id)
}

// Active loads a user that has not been deactivated.
func (s *UserService) Active(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, errs.FromDB(err, errs.ErrUserNotFound)
	}
	return &u, nil
}

// Authenticate checks an email and password pair.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errs.ErrInvalidCredentials
	}
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if isNotFound(err) {
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errs.ErrInvalidCredentials
	}
	return &u, nil
}

func (s *UserService) Create(ctx context.Context, actor *model.User, in CreateUserInput) (*model.User, error) {
	if err := access.CheckUserChange(actor, nil, &in.Role); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	u := model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Role:         in.Role,
		Company:      trimmed(in.Company),
		DepartmentID: nonZero(in.DepartmentID),
	}
	if u.Name == "" {
		fields["name"] = "is required"
	}
	if msg := checkEmail(u.Email); msg != "" {
		fields["email"] = msg
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if !u.Role.Valid() {
		fields["role"] = "must be one of admin, staff, client"
	} else if field, msg := u.Normalize(); field != "" {
		fields[field] = msg
	}
	if err := errs.FieldErrors(fields); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkEmailFree(ctx, tx, u.Email, 0); err != nil {
			return err
		}
		if err := checkDepartment(ctx, tx, u.DepartmentID); err != nil {
			return err
		}
		if u.DisplayOrder, err = ordering.Next(ctx, tx, ordering.Users, ordering.UserTypeScope(u.Type)); err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&u).Error
	})
	if err != nil {
		if errs.IsDuplicate(err) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, errs.FromDB(err, nil)
	}
	return &u, nil
}

// Update changes a user's profile. A role change that crosses between internal
// and client moves the user to the end of the other list.
func (s *UserService) Update(ctx context.Context, actor *model.User, id uint64, p UserPatch) (*model.User, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.WithContext(ctx).First(&u, id).Error; err != nil {
			return errs.FromDB(err, errs.ErrUserNotFound)
		}
		if err := access.CheckUserChange(actor, &u, p.Role); err != nil {
			return err
		}
		if p.Role != nil && *p.Role != u.Role && actor.ID == u.ID {
			return errs.Forbidden("you cannot change your own role")
		}
		prevType := u.Type
		changes := map[string]any{}
		fields := map[string]string{}
		if p.Name != nil {
			if name := strings.TrimSpace(*p.Name); name == "" {
				fields["name"] = "must not be empty"
			} else {
				u.Name = name
				changes["name"] = name
			}
		}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			if msg := checkEmail(email); msg != "" {
				fields["email"] = msg
			} else {
				u.Email = email
				changes["email"] = email
			}
		}
		if p.Password != nil {
			if len(*p.Password) < minPasswordLength {
				fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
			} else {
				hash, err := bcrypt.GenerateFromPassword([]byte(*p.Password), bcrypt.DefaultCost)
				if err != nil {
					return fmt.Errorf("hash password: %w", err)
				}
				changes["password_hash"] = string(hash)
			}
		}
		if p.Role != nil {
			if !p.Role.Valid() {
				fields["role"] = "must be one of admin, staff, client"
			} else {
				u.Role = *p.Role
			}
		}
		if p.Company.Set {
			u.Company = trimmed(p.Company.Value)
		}
		if p.DepartmentID.Set {
			u.DepartmentID = nonZero(p.DepartmentID.Value)
		}
		if len(fields) == 0 {
			// A client promoted to staff drops their company, and the reverse drops the department.
			if p.Role != nil && !p.Company.Set && u.Role.Type() == model.UserTypeInternal {
				u.Company = nil
			}
			if p.Role != nil && !p.DepartmentID.Set && u.Role.Type() == model.UserTypeClient {
				u.DepartmentID = nil
			}
			if field, msg := u.Normalize(); field != "" {
				fields[field] = msg
			}
		}
		if err := errs.FieldErrors(fields); err != nil {
			return err
		}
		if p.Email != nil {
			if err := s.checkEmailFree(ctx, tx, u.Email, u.ID); err != nil {
				return err
			}
		}
		if p.DepartmentID.Set {
			if err := checkDepartment(ctx, tx, u.DepartmentID); err != nil {
				return err
			}
		}
		changes["role"] = string(u.Role)
		changes["type"] = string(u.Type)
		changes["company"] = u.Company
		changes["department_id"] = nullable(u.DepartmentID)
		if err := tx.WithContext(ctx).Model(&u).Updates(changes).Error; err != nil {
			return fmt.Errorf("update user %d: %w", id, err)
		}
		if u.Type != prevType {
			return ordering.MoveToEnd(ctx, tx, ordering.Users, u.ID, ordering.UserTypeScope(u.Type), nil, s.now())
		}
		return nil
	})
	if err != nil {
		if errs.IsDuplicate(err) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, errs.FromDB(err, errs.ErrUserNotFound)
	}
	return s.Active(ctx, id)
}

// Deactivate soft-deletes a user. Their tasks and comments are untouched.
func (s *UserService) Deactivate(ctx context.Context, actor *model.User, id uint64) error {
	if actor.ID == id {
		return errs.Forbidden("you cannot deactivate yourself")
	}
	u, err := s.Active(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CheckUserChange(actor, u, nil); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(u).Error; err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	return nil
}

// Restore reactivates a deactivated user. It fails when their email has been
// taken by another active user in the meantime.
func (s *UserService) Restore(ctx context.Context, actor *model.User, id uint64) (*model.User, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := deactivatedUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.CheckUserChange(actor, u, nil); err != nil {
			return err
		}
		if err := s.checkEmailFree(ctx, tx, u.Email, u.ID); err != nil {
			return err
		}
		order, err := ordering.Next(ctx, tx, ordering.Users, ordering.UserTypeScope(u.Type))
		if err != nil {
			return err
		}
		return tx.WithContext(ctx).Unscoped().Model(u).
			Updates(map[string]any{"deleted_at": nil, "display_order": order}).Error
	})
	if err != nil {
		return nil, errs.FromDB(err, errs.ErrUserNotFound)
	}
	return s.Active(ctx, id)
}

// Purge permanently removes a deactivated user. Users who created tasks
// cannot be purged; tasks assigned to them become unassigned and their
// notifications are deleted.
func (s *UserService) Purge(ctx context.Context, actor *model.User, id uint64) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := deactivatedUser(ctx, tx, id)
		if err != nil {
			return err
		}
		var created int64
		if err := tx.Unscoped().Model(&model.Task{}).Where("creator_id = ?", u.ID).Count(&created).Error; err != nil {
			return fmt.Errorf("purge user %d: count tasks: %w", id, err)
		}
		if created > 0 {
			return errs.Conflict(fmt.Sprintf("user created %d tasks and cannot be purged", created))
		}
		if err := tx.Unscoped().Model(&model.Task{}).Where("assignee_id = ?", u.ID).
			Updates(map[string]any{"assignee_id": nil, "updated_at": s.now()}).Error; err != nil {
			return fmt.Errorf("purge user %d: unassign tasks: %w", id, err)
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&model.Notification{}).Error; err != nil {
			return fmt.Errorf("purge user %d: notifications: %w", id, err)
		}
		if err := tx.Unscoped().Delete(u).Error; err != nil {
			return fmt.Errorf("purge user %d: %w", id, err)
		}
		return nil
	})
}

func (s *UserService) Reorder(ctx context.Context, actor *model.User, items []ReorderItem) error {
	if err := access.RequireInternal(actor); err != nil {
		return err
	}
	batch, err := reorderBatch("users", items)
	if err != nil {
		return err
	}
	return s.order.Reorder(ctx, ordering.Users, batch, locateUser)
}

// locateUser keeps internal users and clients in their own sequences.
func locateUser(ctx context.Context, tx *gorm.DB, it ordering.Item) (ordering.Placement, error) {
	var u model.User
	if err := tx.WithContext(ctx).Select("id", "type").First(&u, it.ID).Error; err != nil {
		return ordering.Placement{}, errs.FromDB(err, errs.ErrUserNotFound)
	}
	return ordering.Placement{Key: string(u.Type), Dest: ordering.UserTypeScope(u.Type)}, nil
}

func (s *UserService) checkEmailFree(ctx context.Context, tx *gorm.DB, email string, except uint64) error {
	var n int64
	err := tx.WithContext(ctx).Model(&model.User{}).
		Where("email = ? AND id <> ?", email, except).Count(&n).Error
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return errs.ErrDuplicateEmail
	}
	return nil
}

func deactivatedUser(ctx context.Context, tx *gorm.DB, id uint64) (*model.User, error) {
	var u model.User
	if err := tx.WithContext(ctx).Unscoped().First(&u, id).Error; err != nil {
		return nil, errs.FromDB(err, errs.ErrUserNotFound)
	}
	if u.Lifecycle() != model.LifecycleDeactivated {
		return nil, errs.Conflict("user is not deactivated")
	}
	return &u, nil
}

func checkDepartment(ctx context.Context, db *gorm.DB, id *uint64) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&model.Department{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return fmt.Errorf("check department: %w", err)
	}
	if n == 0 {
		return errs.Invalid("department_id", "unknown department")
	}
	return nil
}

func checkEmail(email string) string {
	if email == "" {
		return "is required"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "must be a valid email address"
	}
	return ""
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
