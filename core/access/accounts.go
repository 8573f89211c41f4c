// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/relabs-tech/campus/core/csql"
)

// Account is a persistent user account. Accounts are created on first login
type Account struct {
	Email string
	Admin bool
}

// EnsureAccountTable creates the account table if it does not exist yet
func EnsureAccountTable(db *csql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
email VARCHAR PRIMARY KEY,
admin BOOLEAN NOT NULL DEFAULT false,
last_login TIMESTAMP NOT NULL DEFAULT now()
);`, db.Table("account")))
	return err
}

// EnsureAccounts creates or updates the specified accounts
func EnsureAccounts(db *csql.DB, accounts ...Account) error {
	insertQuery := fmt.Sprintf("INSERT INTO %s (email,admin) VALUES($1,$2) ON CONFLICT (email) DO UPDATE SET admin=EXCLUDED.admin;", db.Table("account"))
	for _, account := range accounts {
		_, err := db.Exec(insertQuery, strings.ToLower(account.Email), account.Admin)
		if err != nil {
			return fmt.Errorf("cannot ensure account %s: %w", account.Email, err)
		}
	}
	return nil
}

// loginAccount records a login for email and returns whether the account is an admin
func loginAccount(ctx context.Context, db *csql.DB, email string) (bool, error) {
	query := fmt.Sprintf("INSERT INTO %s (email) VALUES($1) ON CONFLICT (email) DO UPDATE SET last_login=now() RETURNING admin;", db.Table("account"))
	var admin bool
	err := db.QueryRowContext(ctx, query, strings.ToLower(email)).Scan(&admin)
	return admin, err
}
