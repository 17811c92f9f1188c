package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/spf13/cobra"
)

var animalsCmd = &cobra.Command{
	Use:   "animals",
	Short: "Manage the herd",
	Long: `List, add, inspect and remove animals.

Subcommands:
  list  List animals
  add   Add an animal
  show  Show an animal and its events
  rm    Remove an animal

Example:
  farmsync animals add V-001 --name Bessie --sex Hembra
  farmsync animals show V-001`,
}

var animalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List animals",
	Long: `List the animals of the current farm.

Example:
  farmsync animals list
  farmsync animals list --status Activa --json`,
	Args: cobra.NoArgs,
	RunE: runAnimalsList,
}

var animalsAddCmd = &cobra.Command{
	Use:   "add <id-interno>",
	Short: "Add an animal",
	Long: `Add an animal identified by the farm's own tag number.

Dates accept YYYY-MM-DD or DD/MM/YYYY. A photo is copied into the farm's
photo cache and uploaded on the next sync.

Example:
  farmsync animals add V-001 --name Bessie --breed Holstein --born 15/03/2021
  farmsync animals add V-002 --photo ./v002.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runAnimalsAdd,
}

var animalsShowCmd = &cobra.Command{
	Use:   "show <animal>",
	Short: "Show an animal",
	Long: `Show an animal and its recorded events. The animal is given by
id_interno or by local id.

Example:
  farmsync animals show V-001
  farmsync animals show 12 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnimalsShow,
}

var animalsRmCmd = &cobra.Command{
	Use:   "rm <animal>",
	Short: "Remove an animal",
	Long: `Remove an animal and its events. Animals that were already synced are
deleted from the remote database first, which needs a connection.

Example:
  farmsync animals rm V-001`,
	Args: cobra.ExactArgs(1),
	RunE: runAnimalsRm,
}

var (
	animalsStatus   string
	animalName      string
	animalSex       string
	animalBreed     string
	animalBorn      string
	animalSiniiga   string
	animalState     string
	animalHerdState string
	animalPhoto     string
	animalLocation  string
)

func init() {
	animalsListCmd.Flags().StringVar(&animalsStatus, "status", "", "Only animals with this herd status")

	f := animalsAddCmd.Flags()
	f.StringVar(&animalName, "name", "", "Animal name")
	f.StringVar(&animalSex, "sex", "", "Hembra or Macho (default Hembra)")
	f.StringVar(&animalBreed, "breed", "", "Breed")
	f.StringVar(&animalBorn, "born", "", "Birth date")
	f.StringVar(&animalSiniiga, "siniiga", "", "SINIIGA ear tag")
	f.StringVar(&animalState, "state", "", "Physiological state")
	f.StringVar(&animalHerdState, "status", "", "Herd status (default Activa)")
	f.StringVar(&animalPhoto, "photo", "", "Path to a photo")
	f.StringVar(&animalLocation, "location", "", "Pen or paddock")

	animalsCmd.AddCommand(animalsListCmd)
	animalsCmd.AddCommand(animalsAddCmd)
	animalsCmd.AddCommand(animalsShowCmd)
	animalsCmd.AddCommand(animalsRmCmd)
}

func runAnimalsList(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	all, err := client.Animals().GetAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("list animals: %w", err)
	}
	if animalsStatus != "" {
		filtered := all[:0]
		for _, a := range all {
			if strings.EqualFold(a.Status, animalsStatus) {
				filtered = append(filtered, a)
			}
		}
		all = filtered
	}
	return outputAnimals(cmd, all)
}

func runAnimalsAdd(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	a, err := client.Animals().Insert(cmd.Context(), &farmsync.Animal{
		InternalID:         args[0],
		Name:               animalName,
		Sex:                animalSex,
		Breed:              animalBreed,
		BirthDate:          animalBorn,
		SiniigaID:          animalSiniiga,
		PhysiologicalState: animalState,
		Status:             animalHerdState,
		Photo:              animalPhoto,
		Location:           animalLocation,
	})
	if err != nil {
		return fmt.Errorf("add animal: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, a)
	}
	out := cmd.OutOrStdout()
	printSuccess(out, "Added %s (local id %d)", a.InternalID, a.LocalID)
	if a.SyncStatus == farmsync.SyncPending {
		printMuted(out, "Pending upload; run 'farmsync sync' when online.")
	}
	return nil
}

// AnimalDetail for JSON output.
type AnimalDetail struct {
	*farmsync.Animal
	Services    []farmsync.BreedingService `json:"servicios"`
	Diagnostics []farmsync.Diagnostic      `json:"diagnosticos"`
	Births      []farmsync.Birth           `json:"partos"`
	Milkings    []farmsync.Milking         `json:"ordenas"`
	Treatments  []farmsync.Treatment       `json:"tratamientos"`
	DryOffs     []farmsync.DryOff          `json:"secados"`
}

func runAnimalsShow(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx := cmd.Context()

	a, err := findAnimal(ctx, client, args[0])
	if err != nil {
		return err
	}
	detail, err := loadAnimalDetail(ctx, client.Records(), a)
	if err != nil {
		return err
	}

	if outputJSON {
		return outputAsJSON(cmd, detail)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(animalMarkdown(detail)))
	return nil
}

func runAnimalsRm(cmd *cobra.Command, args []string) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a, err := findAnimal(ctx, client, args[0])
	if err != nil {
		return err
	}
	if err := client.Animals().Delete(ctx, a.LocalID); err != nil {
		if errors.Is(err, farmsync.ErrOffline) {
			return fmt.Errorf("remove %s: animal is synced and no remote is configured", a.InternalID)
		}
		return fmt.Errorf("remove %s: %w", a.InternalID, err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]interface{}{"removed": a.InternalID, "local_id": a.LocalID})
	}
	printSuccess(cmd.OutOrStdout(), "Removed %s", a.InternalID)
	return nil
}

// findAnimal resolves ref as an id_interno first, then as a local id.
func findAnimal(ctx context.Context, client *farmsync.Client, ref string) (*farmsync.Animal, error) {
	all, err := client.Animals().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	for i := range all {
		if all[i].InternalID == ref {
			return &all[i], nil
		}
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for i := range all {
			if all[i].LocalID == id {
				return &all[i], nil
			}
		}
	}
	return nil, fmt.Errorf("animal %q: %w", ref, farmsync.ErrNotFound)
}

func loadAnimalDetail(ctx context.Context, recs farmsync.Records, a *farmsync.Animal) (*AnimalDetail, error) {
	d := &AnimalDetail{Animal: a}
	var err error
	if d.Services, err = recs.BreedingServices.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	if d.Diagnostics, err = recs.Diagnostics.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	if d.Births, err = recs.Births.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	if d.Milkings, err = recs.Milkings.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	if d.Treatments, err = recs.Treatments.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	if d.DryOffs, err = recs.DryOffs.ForAnimal(ctx, a.LocalID); err != nil {
		return nil, err
	}
	return d, nil
}

func animalMarkdown(d *AnimalDetail) string {
	var b strings.Builder
	title := d.InternalID
	if d.Name != "" {
		title += " " + d.Name
	}
	fmt.Fprintf(&b, "## %s\n\n", title)

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", label, value)
		}
	}
	field("Sex", d.Sex)
	field("Breed", d.Breed)
	field("Born", d.BirthDate)
	field("SINIIGA", d.SiniigaID)
	field("State", d.PhysiologicalState)
	field("Status", d.Status)
	field("Location", d.Location)
	field("Photo", d.Photo)
	field("Sync", string(d.SyncStatus))

	if len(d.Services) > 0 {
		b.WriteString("\n### Services\n\n")
		for _, s := range d.Services {
			fmt.Fprintf(&b, "- %s %s %s\n", s.Date, s.Type, s.Bull)
		}
	}
	if len(d.Diagnostics) > 0 {
		b.WriteString("\n### Diagnostics\n\n")
		for _, x := range d.Diagnostics {
			fmt.Fprintf(&b, "- %s %s\n", x.Date, x.Result)
		}
	}
	if len(d.Births) > 0 {
		b.WriteString("\n### Births\n\n")
		for _, x := range d.Births {
			fmt.Fprintf(&b, "- %s %s\n", x.Date, x.Problems)
		}
	}
	if len(d.Milkings) > 0 {
		b.WriteString("\n### Milkings\n\n")
		for _, x := range d.Milkings {
			total := "-"
			if x.TotalLiters != nil {
				total = strconv.FormatFloat(*x.TotalLiters, 'f', -1, 64) + " L"
			}
			fmt.Fprintf(&b, "- %s %s\n", x.Date, total)
		}
	}
	if len(d.Treatments) > 0 {
		b.WriteString("\n### Treatments\n\n")
		for _, x := range d.Treatments {
			fmt.Fprintf(&b, "- %s %s %s\n", x.StartDate, x.Medication, x.Dose)
		}
	}
	if len(d.DryOffs) > 0 {
		b.WriteString("\n### Dry-offs\n\n")
		for _, x := range d.DryOffs {
			fmt.Fprintf(&b, "- planned %s, actual %s\n", x.PlannedDate, x.ActualDate)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
