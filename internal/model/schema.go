package model

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var (
	// MeetingsColumns 会议表字段
	MeetingsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "create_time", Type: field.TypeTime},
		{Name: "update_time", Type: field.TypeTime},
		{Name: "meeting_id", Type: field.TypeString, Unique: true},
		{Name: "change_key", Type: field.TypeString},
		{Name: "is_cancelled", Type: field.TypeBool, Default: false},
		{Name: "subject", Type: field.TypeString, Default: ""},
		{Name: "start_date_time", Type: field.TypeJSON},
		{Name: "end_date_time", Type: field.TypeJSON},
		{Name: "start_at", Type: field.TypeTime, Nullable: true},
		{Name: "location", Type: field.TypeString, Default: ""},
		{Name: "participants", Type: field.TypeJSON},
		{Name: "meeting_manager", Type: field.TypeJSON},
		{Name: "phone_number", Type: field.TypeString, Nullable: true},
		{Name: "code", Type: field.TypeString, Nullable: true},
		{Name: "enrollment_notified_at", Type: field.TypeTime, Nullable: true},
		{Name: "transcribed_at", Type: field.TypeTime, Nullable: true},
	}
	// MeetingsTable 会议表，meeting_id 唯一
	MeetingsTable = &schema.Table{
		Name:       "meetings",
		Columns:    MeetingsColumns,
		PrimaryKey: []*schema.Column{MeetingsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "meeting_start_at", Unique: false, Columns: []*schema.Column{MeetingsColumns[9]}},
		},
	}

	// PeopleColumns 参与者表字段
	PeopleColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "create_time", Type: field.TypeTime},
		{Name: "update_time", Type: field.TypeTime},
		{Name: "email", Type: field.TypeString, Unique: true},
		{Name: "name", Type: field.TypeString, Default: ""},
		{Name: "azure_speaker_recognition_guid", Type: field.TypeString, Nullable: true},
	}
	// PeopleTable 参与者表，记录声纹注册结果
	PeopleTable = &schema.Table{
		Name:       "people",
		Columns:    PeopleColumns,
		PrimaryKey: []*schema.Column{PeopleColumns[0]},
	}

	// Tables 全部数据表
	Tables = []*schema.Table{
		MeetingsTable,
		PeopleTable,
	}
)

// Open 打开 SQLite 数据库并创建表结构
// dsn 需要带 _fk=1，例如 file:data/sqlite.db?mode=rwc&_journal_mode=WAL&_fk=1
func Open(ctx context.Context, dsn string) (*entsql.Driver, error) {
	drv, err := entsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("创建迁移失败: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		drv.Close()
		return nil, fmt.Errorf("创建数据库Schema失败: %w", err)
	}
	return drv, nil
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}
