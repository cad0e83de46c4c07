package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/psds-microservice/task-service/internal/config"
	"github.com/psds-microservice/task-service/internal/database"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load departments, categories and users from a YAML file. Existing names and emails are skipped.",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "path to the YAML fixtures")
	rootCmd.AddCommand(seedCmd)
}

type seedOrg struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type seedUser struct {
	Name       string  `yaml:"name"`
	Email      string  `yaml:"email"`
	Password   string  `yaml:"password"`
	Role       string  `yaml:"role"`
	Company    *string `yaml:"company"`
	Department string  `yaml:"department"`
}

type seedData struct {
	Departments []seedOrg  `yaml:"departments"`
	Categories  []seedOrg  `yaml:"categories"`
	Users       []seedUser `yaml:"users"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("seed: parse %s: %w", seedFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	return seedAll(cmd.Context(), db, data)
}

// seedAll inserts data through the services, acting as a system admin.
func seedAll(ctx context.Context, db *gorm.DB, data seedData) error {
	if ctx == nil {
		ctx = context.Background()
	}
	system := &model.User{Name: "seed", Role: model.RoleAdmin, Type: model.UserTypeInternal}

	depSvc := service.NewDepartmentService(db)
	existing, err := depSvc.List(ctx)
	if err != nil {
		return err
	}
	departments := map[string]uint64{}
	for _, d := range existing {
		departments[strings.ToLower(d.Name)] = d.ID
	}
	for _, d := range data.Departments {
		if _, ok := departments[strings.ToLower(d.Name)]; ok {
			continue
		}
		created, err := depSvc.Create(ctx, system, service.OrgInput{Name: d.Name, Color: d.Color})
		if err != nil {
			return fmt.Errorf("seed: department %q: %w", d.Name, err)
		}
		departments[strings.ToLower(created.Name)] = created.ID
		log.Printf("seed: department %q", created.Name)
	}

	catSvc := service.NewCategoryService(db)
	cats, err := catSvc.List(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range cats {
		seen[strings.ToLower(c.Name)] = true
	}
	for _, c := range data.Categories {
		if seen[strings.ToLower(c.Name)] {
			continue
		}
		created, err := catSvc.Create(ctx, system, service.OrgInput{Name: c.Name, Color: c.Color})
		if err != nil {
			return fmt.Errorf("seed: category %q: %w", c.Name, err)
		}
		seen[strings.ToLower(created.Name)] = true
		log.Printf("seed: category %q", created.Name)
	}

	userSvc := service.NewUserService(db)
	for _, u := range data.Users {
		in := service.CreateUserInput{
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Role:     model.Role(u.Role),
			Company:  u.Company,
		}
		if u.Department != "" {
			id, ok := departments[strings.ToLower(u.Department)]
			if !ok {
				return fmt.Errorf("seed: user %q: unknown department %q", u.Email, u.Department)
			}
			in.DepartmentID = &id
		}
		created, err := userSvc.Create(ctx, system, in)
		if errors.Is(err, errs.ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed: user %q: %w", u.Email, err)
		}
		log.Printf("seed: user %q (%s)", created.Email, created.Role)
	}
	return nil
}
