package migrate

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SQLiteSchema mirrors the Postgres migrations for local sqlite runs and tests.
// Money is stored as TEXT so decimals round-trip exactly.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  payout_email TEXT,
  custom_platform_fee_percentage TEXT,
  is_deleted BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  inventory_type TEXT NOT NULL DEFAULT 'STOCK',
  inventory_count INTEGER NOT NULL DEFAULT 0,
  is_deleted BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (user_id, product_id)
);
CREATE TABLE IF NOT EXISTS checkout_sessions (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  organization_id TEXT,
  customer_id TEXT NOT NULL,
  customer_info TEXT,
  status TEXT NOT NULL DEFAULT 'PENDING',
  payment_status TEXT NOT NULL DEFAULT 'PENDING',
  cancellation_reason TEXT,
  subtotal_amount TEXT NOT NULL,
  shipping_fee TEXT NOT NULL DEFAULT '0',
  discount_amount TEXT NOT NULL DEFAULT '0',
  voucher_discount TEXT NOT NULL DEFAULT '0',
  voucher_id TEXT,
  total_amount TEXT NOT NULL,
  item_count INTEGER NOT NULL DEFAULT 0,
  checkout_session_id TEXT,
  gateway_checkout_id TEXT,
  checkout_expires_at DATETIME,
  paid_at DATETIME,
  payout_invoice_id TEXT,
  is_deleted BOOLEAN NOT NULL DEFAULT 0,
  order_date DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  inventory_type TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  line_total TEXT NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_status_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  note TEXT,
  actor_id TEXT,
  actor_role TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  reference_no TEXT NOT NULL,
  checkout_id TEXT,
  reconciliation_status TEXT NOT NULL DEFAULT 'PENDING',
  status_history TEXT,
  payment_date DATETIME NOT NULL,
  created_at DATETIME,
  UNIQUE (order_id, reference_no)
);
CREATE TABLE IF NOT EXISTS vouchers (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  description TEXT,
  discount_type TEXT NOT NULL,
  discount_value TEXT NOT NULL,
  min_order_amount TEXT,
  max_discount_amount TEXT,
  usage_limit INTEGER,
  usage_limit_per_user INTEGER,
  used_count INTEGER NOT NULL DEFAULT 0,
  valid_from DATETIME NOT NULL,
  valid_until DATETIME,
  organization_id TEXT,
  is_active BOOLEAN NOT NULL DEFAULT 1,
  is_deleted BOOLEAN NOT NULL DEFAULT 0,
  assigned_to_user_id TEXT,
  cancellation_initiator TEXT,
  monetary_refund_eligible_at DATETIME,
  source_order_id TEXT,
  created_by_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS voucher_usages (
  id TEXT PRIMARY KEY,
  voucher_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  discount_amount TEXT NOT NULL,
  voucher_snapshot TEXT,
  unique_key TEXT UNIQUE,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS refund_requests (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  requested_by_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  reason TEXT NOT NULL,
  customer_message TEXT,
  admin_message TEXT,
  refund_amount TEXT NOT NULL,
  order_snapshot TEXT,
  reviewed_by_id TEXT,
  reviewed_at DATETIME,
  voucher_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS refund_requests_one_pending ON refund_requests (order_id) WHERE status = 'PENDING';
CREATE TABLE IF NOT EXISTS payout_invoices (
  id TEXT PRIMARY KEY,
  invoice_number TEXT NOT NULL UNIQUE,
  organization_id TEXT NOT NULL,
  organization_snapshot TEXT,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  gross_amount TEXT NOT NULL,
  platform_fee_percentage TEXT NOT NULL,
  platform_fee_amount TEXT NOT NULL,
  adjustments_amount TEXT NOT NULL DEFAULT '0',
  net_amount TEXT NOT NULL,
  order_count INTEGER NOT NULL,
  item_count INTEGER NOT NULL,
  order_summary TEXT,
  status TEXT NOT NULL DEFAULT 'PENDING',
  status_history TEXT,
  paid_at DATETIME,
  paid_by_id TEXT,
  payment_reference TEXT,
  pdf_key TEXT,
  pdf_url TEXT,
  email_sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT payout_invoices_org_period_key UNIQUE (organization_id, period_start)
);
CREATE TABLE IF NOT EXISTS payout_adjustments (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  order_id TEXT,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  description TEXT,
  reference_invoice_number TEXT,
  applied_invoice_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payout_settings (
  id INTEGER PRIMARY KEY,
  default_fee_percentage TEXT NOT NULL,
  cutoff_day_of_week INTEGER NOT NULL DEFAULT 2,
  payout_day_of_week INTEGER NOT NULL DEFAULT 3,
  minimum_payout_amount TEXT NOT NULL DEFAULT '0',
  last_run_at DATETIME,
  last_run_period_start DATETIME,
  last_run_status TEXT,
  updated_by_id TEXT,
  updated_at DATETIME
);
INSERT OR IGNORE INTO payout_settings (id, default_fee_percentage) VALUES (1, '10');
CREATE TABLE IF NOT EXISTS activity_logs (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_id TEXT,
  entity_type TEXT NOT NULL,
  entity_id TEXT,
  message TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  terminal_at DATETIME
);
`

// ApplySQLite creates the sqlite schema statement by statement.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range strings.Split(SQLiteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
