package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

const (
	colEmail           = "email"
	colName            = "name"
	colRecognitionGUID = "azure_speaker_recognition_guid"
)

// Person 参与者及其声纹注册信息
type Person struct {
	ID              int
	Email           string
	Name            string
	RecognitionGUID *string
}

// Enrolled 是否已完成声纹注册
func (p *Person) Enrolled() bool {
	return p != nil && p.RecognitionGUID != nil && *p.RecognitionGUID != ""
}

type PersonModel struct {
	drv *entsql.Driver
}

func NewPersonModel(drv *entsql.Driver) *PersonModel {
	return &PersonModel{drv: drv}
}

// FindByEmail 按邮箱查询参与者，邮箱不区分大小写
func (m *PersonModel) FindByEmail(ctx context.Context, email string) (*Person, error) {
	query, args := builder().
		Select(colID, colEmail, colName, colRecognitionGUID).
		From(entsql.Table(PeopleTable.Name)).
		Where(entsql.EQ(colEmail, normalizeEmail(email))).
		Limit(1).
		Query()

	rows := &entsql.Rows{}
	if err := m.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("查询参与者失败: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("查询参与者失败: %w", err)
		}
		return nil, fmt.Errorf("参与者 %s: %w", email, ErrNotFound)
	}

	var (
		p    Person
		guid sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.Email, &p.Name, &guid); err != nil {
		return nil, fmt.Errorf("读取参与者失败: %w", err)
	}
	p.RecognitionGUID = stringPtr(guid)
	return &p, nil
}

// SetRecognitionGUID 保存参与者的声纹识别ID，不存在时创建
func (m *PersonModel) SetRecognitionGUID(ctx context.Context, email, name, guid string) error {
	now := time.Now().UTC()
	query, args := builder().
		Insert(PeopleTable.Name).
		Columns(colCreateTime, colUpdateTime, colEmail, colName, colRecognitionGUID).
		Values(now, now, normalizeEmail(email), name, guid).
		OnConflict(
			entsql.ConflictColumns(colEmail),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded(colUpdateTime)
				u.SetExcluded(colRecognitionGUID)
				if name != "" {
					u.SetExcluded(colName)
				}
			}),
		).
		Query()

	var res sql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("保存声纹识别ID失败: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
