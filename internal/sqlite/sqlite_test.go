package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Sqlite(t *testing.T) {
	t.Run("Should create a new GormSqlite", func(t *testing.T) {
		grm, err := NewGormSqliteFromSqlite(NewSqlite(NewInMemoryPath()))
		assert.Nil(t, err)
		assert.NotNil(t, grm)

		db, err := grm.DB()
		assert.Nil(t, err)
		defer db.Close()
	})
	t.Run("Should round trip UTC timestamps", func(t *testing.T) {
		grm, err := NewGormSqliteFromSqlite(NewSqlite(NewInMemoryPath()))
		assert.Nil(t, err)

		res := grm.Exec(`create table stamps (id varchar primary key, at timestamp)`)
		assert.Nil(t, res.Error)

		at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		res = grm.Exec(`insert into stamps (id, at) values (?, ?)`, "a", at)
		assert.Nil(t, res.Error)

		var read time.Time
		err = grm.Raw(`select at from stamps where id = ?`, "a").Row().Scan(&read)
		assert.Nil(t, err)
		assert.True(t, at.Equal(read))
	})
	t.Run("Separate in-memory paths are isolated", func(t *testing.T) {
		a, err := NewGormSqliteFromSqlite(NewSqlite(NewInMemoryPath()))
		assert.Nil(t, err)
		b, err := NewGormSqliteFromSqlite(NewSqlite(NewInMemoryPath()))
		assert.Nil(t, err)

		assert.Nil(t, a.Exec(`create table only_in_a (id varchar)`).Error)
		assert.NotNil(t, b.Exec(`select * from only_in_a`).Error)
	})
}
