package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/database"
	"github.com/vigilearn/examguard-backend/internal/logger"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/repository"
	"github.com/vigilearn/examguard-backend/internal/service"
	"golang.org/x/term"
)

// seed-users creates an account directly in the database and optionally mints
// a JWT for it. Production identities come from the platform's auth service;
// this tool exists for local development and e2e fixtures.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg)

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Seed User ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		fmt.Println("Error: A valid email is required")
		return
	}

	fmt.Print("Enter Role (student/teacher/admin): ")
	roleInput, _ := reader.ReadString('\n')
	role := model.Role(strings.TrimSpace(strings.ToLower(roleInput)))
	switch role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		fmt.Println("Error: Role must be student, teacher, or admin")
		return
	}

	fmt.Print("Enter Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	if len(passwordBytes) < 8 {
		fmt.Println("Error: Password must be at least 8 characters")
		return
	}

	hash, err := authService.HashPassword(string(passwordBytes))
	if err != nil {
		fmt.Printf("Error hashing password: %v\n", err)
		return
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		fmt.Printf("Error creating user: %v\n", err)
		return
	}

	fmt.Printf("Created %s account #%d (%s)\n", role, user.ID, email)

	fmt.Print("Mint a JWT for this user? (y/N): ")
	answer, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(answer)) != "y" {
		return
	}

	token, err := authService.GenerateToken(user.ID, role)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		return
	}
	fmt.Printf("Token (expires in %s):\n%s\n", cfg.JWTExpiry, token)
}
