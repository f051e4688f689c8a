package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/facesvc"
	"github.com/kozaktomas/face-recall/internal/imagestore"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage known persons",
	Long:  `Commands for listing, searching, seeding and re-owning known persons.`,
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known persons",
	Long: `List stored known persons, optionally filtered by owner or by name.

Name filtering ignores case and diacritics ("zdenek" matches "Zdeněk").`,
	Args: cobra.NoArgs,
	RunE: runPersonsList,
}

var personsSimilarCmd = &cobra.Command{
	Use:   "similar <known-person-id>",
	Short: "List the known persons whose faces look most alike",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsSimilar,
}

var personsSeedCmd = &cobra.Command{
	Use:   "seed <dir>",
	Short: "Enroll known persons from a directory of portraits",
	Long: `Enroll one known person per image in a directory.

Every image must contain exactly one face. The person's name is taken from the
file name ("jane_doe.jpg" becomes "jane doe"). Images whose id already exists
are skipped, so seeding the same directory twice is safe.

Examples:
  face-recall persons seed ./portraits --owner patient_1
  face-recall persons seed ./portraits --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonsSeed,
}

var personsAssignOwnerCmd = &cobra.Command{
	Use:   "assign-owner <owner-id>",
	Short: "Assign every known person to one owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsAssignOwner,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsSimilarCmd)
	personsCmd.AddCommand(personsSeedCmd)
	personsCmd.AddCommand(personsAssignOwnerCmd)

	personsListCmd.Flags().String("owner", "", "Only persons belonging to this owner (patient id)")
	personsListCmd.Flags().String("name", "", "Only persons whose name contains this text")
	personsListCmd.Flags().Bool("json", false, "Output as JSON")

	personsSimilarCmd.Flags().Int("k", constants.DefaultSimilarLimit, "Number of neighbours to list")
	personsSimilarCmd.Flags().Bool("json", false, "Output as JSON")

	personsSeedCmd.Flags().String("owner", "", "Owner (patient id) of the seeded persons (default PIPELINE enrolled owner)")
	personsSeedCmd.Flags().Int("concurrency", 4, "Number of images processed in parallel")
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	owner := mustGetString(cmd, "owner")
	name := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var identities []facematch.KnownIdentity
	if owner != "" {
		identities, err = store.ListIdentitiesByOwner(ctx, owner)
	} else {
		identities, err = store.ListIdentities(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	filtered := identities[:0]
	for _, ident := range identities {
		if facematch.NameMatches(name, ident.DisplayName) {
			filtered = append(filtered, ident)
		}
	}

	if jsonOutput {
		return printJSON(filtered)
	}

	if len(filtered) == 0 {
		fmt.Println("No known persons found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tCREATED\tIMAGE")
	fmt.Fprintln(w, "--\t----\t-----\t-------\t-----")
	for _, ident := range filtered {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ident.ID, ident.DisplayName, ident.OwnerID,
			ident.CreatedAt.Local().Format(time.DateTime), ident.ImagePath)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d persons\n", len(filtered))
	return nil
}

func runPersonsSimilar(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	id := args[0]
	k := mustGetInt(cmd, "k")
	jsonOutput := mustGetBool(cmd, "json")
	if k <= 0 {
		return errors.New("--k must be positive")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	identities, err := store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}
	catalog, err := facematch.NewCatalog(identities)
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}

	neighbors, ok := facematch.NewIndex(catalog).SimilarTo(id, k)
	if !ok {
		return fmt.Errorf("known person %q not found", id)
	}

	if jsonOutput {
		return printJSON(neighbors)
	}

	if len(neighbors) == 0 {
		fmt.Println("No other known persons to compare with.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tDISTANCE")
	fmt.Fprintln(w, "--\t----\t-----\t--------")
	for _, n := range neighbors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\n", n.Identity.ID, n.Identity.DisplayName, n.Identity.OwnerID, n.Distance)
	}
	w.Flush()
	return nil
}

func runPersonsAssignOwner(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	owner := strings.TrimSpace(args[0])
	if owner == "" {
		return errors.New("owner id must not be empty")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	updated, err := store.AssignOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to assign owner: %w", err)
	}
	if updated == 0 {
		fmt.Println("No known persons records found to update.")
		return nil
	}
	fmt.Printf("Assigned %d known persons to %s\n", updated, owner)
	return nil
}

// seedOutcome counts the results of a seed run.
type seedOutcome struct {
	mu       sync.Mutex
	enrolled int
	skipped  int
	failed   []string
}

func runPersonsSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	dir := args[0]
	owner := mustGetString(cmd, "owner")
	concurrency := mustGetInt(cmd, "concurrency")
	if owner == "" {
		owner = cfg.Pipeline.EnrolledOwner
	}
	if concurrency < 1 {
		concurrency = 1
	}

	files, err := listPortraits(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	images, err := imagestore.New(cfg.Images)
	if err != nil {
		return fmt.Errorf("failed to open image store: %w", err)
	}
	faces := facesvc.NewClient(cfg.FaceService.URL, cfg.FaceService.Dim)
	if err := faces.Health(ctx); err != nil {
		return fmt.Errorf("face service is not reachable: %w", err)
	}

	fmt.Printf("Seeding %d images from %s (owner %s)\n", len(files), dir, owner)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling persons"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var outcome seedOutcome
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			created, err := seedPortrait(ctx, faces, images, store, owner, file)
			outcome.mu.Lock()
			defer outcome.mu.Unlock()
			switch {
			case err != nil:
				outcome.failed = append(outcome.failed, fmt.Sprintf("%s: %v", filepath.Base(file), err))
			case created:
				outcome.enrolled++
			default:
				outcome.skipped++
			}
		}(file)
	}

	wg.Wait()
	fmt.Println()

	sort.Strings(outcome.failed)
	for _, msg := range outcome.failed {
		fmt.Printf("  failed %s\n", msg)
	}
	fmt.Printf("\nCompleted: %d enrolled, %d already known, %d errors\n", outcome.enrolled, outcome.skipped, len(outcome.failed))

	total, err := store.CountIdentities(ctx)
	if err == nil {
		fmt.Printf("Total known persons: %d\n", total)
	}
	return nil
}

// seedPortrait enrolls the person in one portrait. It reports false without an
// error when the person is already stored.
func seedPortrait(ctx context.Context, faces *facesvc.Client, images imagestore.Store, store database.IdentityWriter, owner, file string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("read image: %w", err)
	}

	name := personNameFromFile(file)
	id := strings.ReplaceAll(facematch.NormalizeName(name), " ", "_")
	if id == "" {
		return false, errors.New("file name gives an empty person name")
	}

	existing, err := store.GetIdentity(ctx, id)
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", id, err)
	}
	if existing != nil {
		return false, nil
	}

	face, err := faces.SingleFace(ctx, data)
	if err != nil {
		return false, err
	}

	path, err := images.Save(ctx, id+strings.ToLower(filepath.Ext(file)), data)
	if err != nil {
		return false, fmt.Errorf("save image: %w", err)
	}

	err = store.InsertIdentity(ctx, facematch.KnownIdentity{
		ID:          id,
		OwnerID:     owner,
		DisplayName: name,
		Embedding:   face.Embedding,
		ImagePath:   path,
		CreatedAt:   time.Now().UTC(),
	})
	if errors.Is(err, database.ErrIdentityExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert identity: %w", err)
	}
	return true, nil
}

// listPortraits returns the image files of dir in name order.
func listPortraits(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// personNameFromFile turns "jane_doe.jpg" into "jane doe".
func personNameFromFile(file string) string {
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
