package service

import (
	"context"
	"database/sql"
	"strconv"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// SeedDemo 空库时写入演示数据：两级部门、两个联系人、一个共享市话号码
// 共享号码需要上限至少为 2
func SeedDemo(ctx context.Context, s repository.Store, defaultLimit int, logger *zap.Logger) error {
	limit := defaultLimit
	if limit < 2 {
		limit = 2
	}

	return s.WithTx(ctx, func(r repository.Repos) error {
		existing, err := r.Departments.ListDepartments(ctx, false)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			logger.Info("Demo seed skipped, departments already exist")
			return nil
		}

		raw, ok, err := r.Settings.GetSetting(ctx, domain.SettingMaxContactsPerPhone, repository.LockUpdate)
		if err != nil {
			return err
		}
		if current, convErr := strconv.Atoi(raw); !ok || convErr != nil || current < limit {
			if err := r.Settings.UpsertSetting(ctx, domain.SettingMaxContactsPerPhone, strconv.Itoa(limit)); err != nil {
				return err
			}
		}

		rootID, err := r.Departments.CreateDepartment(ctx, &domain.Department{Name: "IT Center", SortOrder: 1, IsActive: true})
		if err != nil {
			return err
		}
		parent := sql.NullInt64{Int64: rootID, Valid: true}
		devID, err := r.Departments.CreateDepartment(ctx, &domain.Department{ParentID: parent, Name: "Development", SortOrder: 1, IsActive: true})
		if err != nil {
			return err
		}
		if _, err := r.Departments.CreateDepartment(ctx, &domain.Department{ParentID: parent, Name: "Support", SortOrder: 2, IsActive: true}); err != nil {
			return err
		}

		ivan, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: rootID, FullName: "Ivan Petrov"})
		if err != nil {
			return err
		}
		maria, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: devID, FullName: "Maria Smirnova"})
		if err != nil {
			return err
		}

		registry := NewPhoneRegistry()
		city, err := registry.FindOrCreate(ctx, r.Phones, domain.PhoneTypeCity, "123-45-67")
		if err != nil {
			return err
		}
		internal, err := registry.FindOrCreate(ctx, r.Phones, domain.PhoneTypeInternal, "101")
		if err != nil {
			return err
		}

		for i, link := range []domain.ContactPhone{
			{ContactID: ivan, PhoneID: city.ID},
			{ContactID: maria, PhoneID: city.ID},
			{ContactID: maria, PhoneID: internal.ID, SortOrder: 1},
		} {
			link := link
			if _, err := r.Links.InsertLink(ctx, &link); err != nil {
				return err
			}
			logger.Debug("Seeded link", zap.Int("n", i+1), zap.Int64("contact_id", link.ContactID))
		}

		logger.Info("Demo data seeded", zap.Int("max_contacts_per_phone", limit))
		return nil
	})
}
