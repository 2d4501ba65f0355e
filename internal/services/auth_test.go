package services

import (
	"testing"

	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	jwtCfg := &config.JWTConfig{Secret: "test-secret", ExpireHour: 24}
	ldapCfg := &config.LDAPConfig{Enabled: false}
	utils.SetJWTSecret(jwtCfg.Secret)

	return NewAuthService(db, jwtCfg, ldapCfg)
}

func TestCreateAdminIfNotExists(t *testing.T) {
	svc := newTestAuthService(t)

	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("CreateAdminIfNotExists() error = %v", err)
	}

	var count int64
	svc.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count != 1 {
		t.Errorf("expected 1 admin user, got %d", count)
	}

	// Second call must not create a duplicate
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("second CreateAdminIfNotExists() error = %v", err)
	}
	svc.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count != 1 {
		t.Errorf("expected 1 admin user after second call, got %d", count)
	}
}

func TestLogin_LocalSuccess(t *testing.T) {
	svc := newTestAuthService(t)
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Login(&LoginRequest{Username: "admin", Password: "admin"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.Token == "" {
		t.Error("expected a non-empty token")
	}
	if result.User == nil || result.User.Username != "admin" {
		t.Error("expected the admin user in the result")
	}
	if result.User.LastLogin == nil {
		t.Error("LastLogin should be set after login")
	}

	claims, err := utils.ParseToken(result.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("token role = %q, expected %q", claims.Role, "admin")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestAuthService(t)
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(&LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Error("Login with wrong password should fail")
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.Login(&LoginRequest{Username: "nobody", Password: "whatever"}); err == nil {
		t.Error("Login with unknown user should fail")
	}
}

func TestLogin_DisabledUser(t *testing.T) {
	svc := newTestAuthService(t)

	hash, _ := utils.HashPassword("secret")
	user := models.User{Username: "ta", Password: hash, Role: "user", AuthType: "local", IsActive: false}
	if err := svc.db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(&LoginRequest{Username: "ta", Password: "secret"}); err == nil {
		t.Error("Login with disabled user should fail")
	}
}

func TestLogin_InvalidAuthType(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.Login(&LoginRequest{Username: "u", Password: "p", AuthType: "kerberos"}); err == nil {
		t.Error("Login with invalid auth type should fail")
	}
}

func TestLogin_LDAPDisabled(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.Login(&LoginRequest{Username: "u", Password: "p", AuthType: "ldap"}); err == nil {
		t.Error("LDAP login should fail when LDAP is disabled")
	}
	if svc.IsLDAPEnabled() {
		t.Error("IsLDAPEnabled should be false")
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestAuthService(t)
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatal(err)
	}

	var admin models.User
	svc.db.Where("username = ?", "admin").First(&admin)

	err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "admin", NewPassword: "newpassword"})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := svc.Login(&LoginRequest{Username: "admin", Password: "admin"}); err == nil {
		t.Error("old password should no longer work")
	}
	if _, err := svc.Login(&LoginRequest{Username: "admin", Password: "newpassword"}); err != nil {
		t.Errorf("new password should work, got error: %v", err)
	}
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	svc := newTestAuthService(t)
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatal(err)
	}

	var admin models.User
	svc.db.Where("username = ?", "admin").First(&admin)

	err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpassword"})
	if err == nil {
		t.Error("ChangePassword with wrong old password should fail")
	}
}
