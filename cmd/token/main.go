// Package main 提供签发访问令牌的命令行工具，服务本身不包含登录流程。
package main

import (
	"flag"
	"fmt"
	"os"

	"jotium-go/internal/config"
	"jotium-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	userID := flag.String("user", "", "令牌所属的用户 ID")
	admin := flag.Bool("admin", false, "签发管理员令牌")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret is not configured")
		os.Exit(1)
	}

	role := ""
	if *admin {
		role = token.RoleAdmin
	}
	tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(*userID, role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
