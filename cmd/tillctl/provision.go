package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/tillpoint/internal/app"
	"github.com/gosuda/tillpoint/internal/tenant"
)

// batchOwner is one entry of a provisioning batch file.
type batchOwner struct {
	OwnerID      string `yaml:"owner_id"`
	BusinessName string `yaml:"business_name"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	Plan         string `yaml:"plan"`
	Password     string `yaml:"password"` //nolint:gosec // G117: operator input
}

type batchFile struct {
	Owners []batchOwner `yaml:"owners"`
}

// request maps the entry to a provisioning request. An entry without an id
// gets a fresh one; provisioning keeps the stored id of a known email.
func (b batchOwner) request() (tenant.Request, error) {
	id := uuid.New()
	if b.OwnerID != "" {
		parsed, err := uuid.Parse(b.OwnerID)
		if err != nil {
			return tenant.Request{}, fmt.Errorf("owner %q: invalid owner_id: %w", b.Email, err)
		}
		id = parsed
	}
	return tenant.Request{
		OwnerID:      id,
		BusinessName: b.BusinessName,
		Email:        b.Email,
		Phone:        b.Phone,
		Plan:         b.Plan,
		Password:     b.Password,
	}, nil
}

// readBatch decodes a batch document. Every entry is validated before any
// provisioning starts.
func readBatch(r io.Reader) ([]tenant.Request, error) {
	var doc batchFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if len(doc.Owners) == 0 {
		return nil, errors.New("batch has no owners")
	}

	reqs := make([]tenant.Request, 0, len(doc.Owners))
	for _, o := range doc.Owners {
		req, err := o.request()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// provisionAll runs every request in order and reports each result. It does
// not stop on failure; the returned error joins every failure.
func provisionAll(ctx context.Context, out io.Writer, reqs []tenant.Request, provision provisionFunc) error {
	var errs []error
	for _, req := range reqs {
		outcome, err := provision(ctx, req)
		if err != nil {
			fmt.Fprintf(out, "FAIL     %s  %s: %v\n", req.OwnerID, req.Email, err)
			errs = append(errs, fmt.Errorf("%s: %w", req.Email, err))
			continue
		}
		status := "CREATED "
		if outcome.Existing {
			status = "EXISTING"
		}
		fmt.Fprintf(out, "%s %s  %s  %s\n", status, outcome.Identity.OwnerID, req.Email, outcome.Identity.Database)
	}
	return errors.Join(errs...)
}

func newProvisionCmd(e *env) *cobra.Command {
	var (
		file  string
		owner batchOwner
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision tenant databases for one owner or a batch file",
		Long: `Provision creates each owner's tenant database, login, control-plane
record and subscription. Re-running for the same owner repairs a partial run.
The command exits non-zero if any owner fails, including schema load failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var reqs []tenant.Request
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open batch: %w", err)
				}
				defer f.Close()
				reqs, err = readBatch(f)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			} else {
				if owner.Email == "" || owner.Password == "" || owner.BusinessName == "" {
					return errors.New("--email, --password and --business-name are required without --file")
				}
				req, err := owner.request()
				if err != nil {
					return err
				}
				reqs = []tenant.Request{req}
			}

			return e.withApp(cmd.Context(), func(a *app.App) error {
				err := provisionAll(cmd.Context(), cmd.OutOrStdout(), reqs, a.Provisioner.Provision)
				if errors.Is(err, tenant.ErrSchemaLoad) {
					return fmt.Errorf("schema load failed, nothing registered for the affected owners: %w", err)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML batch file with an owners list")
	cmd.Flags().StringVar(&owner.OwnerID, "owner-id", "", "owner id (generated when empty)")
	cmd.Flags().StringVar(&owner.BusinessName, "business-name", "", "business name")
	cmd.Flags().StringVar(&owner.Email, "email", "", "owner email")
	cmd.Flags().StringVar(&owner.Phone, "phone", "", "owner phone")
	cmd.Flags().StringVar(&owner.Plan, "plan", "", "plan (default plan when empty)")
	cmd.Flags().StringVar(&owner.Password, "password", "", "initial owner password")
	cmd.MarkFlagsMutuallyExclusive("file", "email")
	return cmd
}
