package tenantdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Session is a tenant handle over one pgx connection.
type Session struct {
	database string
	conn     *pgx.Conn
	users    *UserRepo
	stores   *StoreRepo
	products *ProductRepo
}

func NewSession(database string, conn *pgx.Conn) *Session {
	return &Session{
		database: database,
		conn:     conn,
		users:    NewUserRepo(conn),
		stores:   NewStoreRepo(conn),
		products: NewProductRepo(conn),
	}
}

func (s *Session) Database() string                   { return s.database }
func (s *Session) Users() domain.TenantUserRepository { return s.users }
func (s *Session) Stores() domain.StoreRepository     { return s.stores }
func (s *Session) Products() domain.ProductRepository { return s.products }

// Close releases the connection. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	err := s.conn.Close(ctx)
	if err != nil {
		return fmt.Errorf("tenantdb.Session.Close %s: %w", s.database, err)
	}
	return nil
}

var _ domain.TenantHandle = (*Session)(nil)
