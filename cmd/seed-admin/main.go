// seed-admin creates the owner account of a tenant and prints a bearer token for it.
//
// Usage:
//
//	DB_DRIVER=mysql DB_HOST=... DB_NAME=... go run ./cmd/seed-admin -tenant acme -username acme-owner
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/repository"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
)

func main() {
	tenantId := flag.String("tenant", "", "tenant id (required)")
	username := flag.String("username", "", "login name (required)")
	name := flag.String("name", "Owner", "display name")
	role := flag.String("role", string(models.UserRoleOwner), "owner | admin | staff")
	flag.Parse()

	if *tenantId == "" || *username == "" {
		flag.Usage()
		os.Exit(2)
	}
	r := models.ParseUserRole(*role)

	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	users := repository.NewUserStore(db)
	user, err := users.GetUserByUsername(ctx, *username)
	switch {
	case utils.IsKind(err, utils.ErrorKindNotFound):
		user = &models.User{TenantId: *tenantId, Username: *username, Name: *name, Role: r, IsActive: utils.NewTrue()}
		if err := users.CreateUser(ctx, user); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created %s user %q in tenant %q\n", r, *username, *tenantId)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("User %q already exists in tenant %q\n", user.Username, user.TenantId)
	}

	token, err := utils.JwtGenerate(user.TenantId, user.ID, user.Name, string(user.Role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
