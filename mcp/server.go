package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/farmsync/farmsync"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with FarmSync tools.
type Server struct {
	client    *farmsync.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with FarmSync tools registered.
func NewServer(client *farmsync.Client) *Server {
	s := &Server{client: client}
	s.mcpServer = server.NewMCPServer(
		"farmsync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdin and stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "farmsync_status", Description: "Show whether farm records are synced, pending or offline"},
		{Name: "farmsync_stats", Description: "Count records per entity type"},
		{Name: "farmsync_sync", Description: "Upload pending records and download remote changes"},
		{Name: "farmsync_animals", Description: "List the animals of the farm"},
		{Name: "farmsync_animal", Description: "Show one animal and its events"},
		{Name: "farmsync_add_animal", Description: "Add an animal to the herd"},
		{Name: "farmsync_record_milking", Description: "Record a day's milk yield for an animal"},
	}
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "farmsync_status":
		return s.handleStatus(ctx, args)
	case "farmsync_stats":
		return s.handleStats(ctx, args)
	case "farmsync_sync":
		return s.handleSync(ctx, args)
	case "farmsync_animals":
		return s.handleAnimals(ctx, args)
	case "farmsync_animal":
		return s.handleAnimal(ctx, args)
	case "farmsync_add_animal":
		return s.handleAddAnimal(ctx, args)
	case "farmsync_record_milking":
		return s.handleRecordMilking(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("farmsync_status",
		mcp.WithDescription("Show whether farm records are synced, waiting for upload, or waiting for a connection."),
	), s.wrap("farmsync_status"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_stats",
		mcp.WithDescription("Count records per entity type (animals, services, diagnostics, births, milkings, treatments, dry-offs) with pending counts and the last sync time."),
	), s.wrap("farmsync_stats"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_sync",
		mcp.WithDescription("Synchronize the farm with its remote database. Records that fail stay pending and are retried on the next sync."),
		mcp.WithString("direction",
			mcp.Description("Sync direction: push, pull, or both (default: both)"),
			mcp.Enum("push", "pull", "both"),
		),
	), s.wrap("farmsync_sync"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_animals",
		mcp.WithDescription("List the animals of the farm with their tag, name, sex, herd status and sync state."),
		mcp.WithString("status",
			mcp.Description("Only animals with this herd status (Activa, Vendida, Muerta, Secada, Enferma)"),
		),
	), s.wrap("farmsync_animals"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_animal",
		mcp.WithDescription("Show one animal and its recorded events."),
		mcp.WithString("animal",
			mcp.Description("The animal's id_interno"),
			mcp.Required(),
		),
	), s.wrap("farmsync_animal"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_add_animal",
		mcp.WithDescription("Add an animal to the herd. It is stored locally and uploaded on the next sync."),
		mcp.WithString("id_interno",
			mcp.Description("The farm's own tag number (unique)"),
			mcp.Required(),
		),
		mcp.WithString("name", mcp.Description("Animal name")),
		mcp.WithString("sex", mcp.Description("Hembra or Macho (default Hembra)")),
		mcp.WithString("breed", mcp.Description("Breed")),
		mcp.WithString("birth_date", mcp.Description("Birth date, YYYY-MM-DD or DD/MM/YYYY")),
		mcp.WithString("status", mcp.Description("Herd status (default Activa)")),
	), s.wrap("farmsync_add_animal"))

	s.mcpServer.AddTool(mcp.NewTool("farmsync_record_milking",
		mcp.WithDescription("Record a day's milk yield for an animal. The total is computed from the morning and evening liters when omitted."),
		mcp.WithString("animal",
			mcp.Description("The animal's id_interno"),
			mcp.Required(),
		),
		mcp.WithString("date",
			mcp.Description("Milking date, YYYY-MM-DD or DD/MM/YYYY"),
			mcp.Required(),
		),
		mcp.WithNumber("liters_am", mcp.Description("Morning liters")),
		mcp.WithNumber("liters_pm", mcp.Description("Evening liters")),
		mcp.WithNumber("total_liters", mcp.Description("Total liters")),
	), s.wrap("farmsync_record_milking"))
}

// wrap adapts an internal handler to the mcp-go handler signature.
func (s *Server) wrap(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func toolError(format string, args ...any) (*ToolResult, error) {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}

// Internal handlers

func (s *Server) handleStatus(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	status, err := s.client.Status(ctx)
	if err != nil {
		return toolError("status failed: %v", err)
	}
	return &ToolResult{Content: fmt.Sprintf("Status: %s\nPending records: %d", status.Text, status.Pending)}, nil
}

func (s *Server) handleStats(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats(ctx)
	if err != nil {
		return toolError("stats failed: %v", err)
	}
	return &ToolResult{Content: formatStats(stats)}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	direction, _ := args["direction"].(string)

	var (
		up   *farmsync.UploadReport
		down *farmsync.DownloadReport
		err  error
	)
	switch direction {
	case "push":
		up, err = s.client.SyncPush(ctx)
	case "pull":
		down, err = s.client.SyncPull(ctx)
	case "", "both":
		var report *farmsync.SyncReport
		if report, err = s.client.Sync(ctx); err == nil {
			up, down = report.Upload, report.Download
		}
	default:
		return toolError("invalid direction %q: must be push, pull or both", direction)
	}

	switch {
	case errors.Is(err, farmsync.ErrOffline):
		return toolError("sync unavailable: no remote database configured")
	case errors.Is(err, farmsync.ErrSyncInProgress):
		return toolError("a sync is already running; try again shortly")
	case err != nil:
		return toolError("sync failed: %v", err)
	}
	return &ToolResult{Content: formatSync(up, down)}, nil
}

func (s *Server) handleAnimals(ctx context.Context, args map[string]any) (*ToolResult, error) {
	all, err := s.client.Animals().GetAll(ctx)
	if err != nil {
		return toolError("list animals failed: %v", err)
	}
	status, _ := args["status"].(string)
	var animals []farmsync.Animal
	for _, a := range all {
		if status == "" || strings.EqualFold(a.Status, status) {
			animals = append(animals, a)
		}
	}
	return &ToolResult{Content: formatAnimals(animals)}, nil
}

func (s *Server) handleAnimal(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref, _ := args["animal"].(string)
	if ref == "" {
		return toolError("animal is required")
	}
	a, err := s.findAnimal(ctx, ref)
	if err != nil {
		return toolError("%v", err)
	}

	recs := s.client.Records()
	var sb strings.Builder
	sb.WriteString(formatAnimal(a))
	count := func(label string, n int, err error) {
		if err == nil && n > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", label, n)
		}
	}
	services, err := recs.BreedingServices.ForAnimal(ctx, a.LocalID)
	count("Services", len(services), err)
	diagnostics, err := recs.Diagnostics.ForAnimal(ctx, a.LocalID)
	count("Diagnostics", len(diagnostics), err)
	births, err := recs.Births.ForAnimal(ctx, a.LocalID)
	count("Births", len(births), err)
	milkings, err := recs.Milkings.ForAnimal(ctx, a.LocalID)
	count("Milkings", len(milkings), err)
	treatments, err := recs.Treatments.ForAnimal(ctx, a.LocalID)
	count("Treatments", len(treatments), err)
	dryOffs, err := recs.DryOffs.ForAnimal(ctx, a.LocalID)
	count("Dry-offs", len(dryOffs), err)
	return &ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}

func (s *Server) handleAddAnimal(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, _ := args["id_interno"].(string)
	if id == "" {
		return toolError("id_interno is required")
	}
	a := &farmsync.Animal{InternalID: id}
	a.Name, _ = args["name"].(string)
	a.Sex, _ = args["sex"].(string)
	a.Breed, _ = args["breed"].(string)
	a.BirthDate, _ = args["birth_date"].(string)
	a.Status, _ = args["status"].(string)

	created, err := s.client.Animals().Insert(ctx, a)
	if err != nil {
		if errors.Is(err, farmsync.ErrDuplicateIDInterno) {
			return toolError("an animal with id_interno %s already exists", id)
		}
		return toolError("add animal failed: %v", err)
	}
	return &ToolResult{Content: "Added animal:\n" + formatAnimal(created)}, nil
}

func (s *Server) handleRecordMilking(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref, _ := args["animal"].(string)
	if ref == "" {
		return toolError("animal is required")
	}
	date, _ := args["date"].(string)
	if date == "" {
		return toolError("date is required")
	}
	a, err := s.findAnimal(ctx, ref)
	if err != nil {
		return toolError("%v", err)
	}

	m := &farmsync.Milking{AnimalID: a.LocalID, Date: date}
	if v, ok := args["liters_am"].(float64); ok {
		m.LitersAM = &v
	}
	if v, ok := args["liters_pm"].(float64); ok {
		m.LitersPM = &v
	}
	if v, ok := args["total_liters"].(float64); ok {
		m.TotalLiters = &v
	}

	created, err := s.client.Records().Milkings.Insert(ctx, m)
	if err != nil {
		return toolError("record milking failed: %v", err)
	}
	total := "unknown"
	if created.TotalLiters != nil {
		total = fmt.Sprintf("%g L", *created.TotalLiters)
	}
	return &ToolResult{Content: fmt.Sprintf("Recorded milking for %s on %s: %s (%s)",
		a.InternalID, created.Date, total, created.SyncStatus)}, nil
}

func (s *Server) findAnimal(ctx context.Context, ref string) (*farmsync.Animal, error) {
	all, err := s.client.Animals().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list animals failed: %v", err)
	}
	for i := range all {
		if all[i].InternalID == ref {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("animal %s not found", ref)
}

// Formatting functions

var kindNames = map[farmsync.EntityKind]string{
	farmsync.KindAnimal:          "Animals",
	farmsync.KindBreedingService: "Services",
	farmsync.KindDiagnostic:      "Diagnostics",
	farmsync.KindBirth:           "Births",
	farmsync.KindMilking:         "Milkings",
	farmsync.KindTreatment:       "Treatments",
	farmsync.KindDryOff:          "Dry-offs",
}

func formatStats(stats *farmsync.StoreStats) string {
	var sb strings.Builder
	for _, kind := range farmsync.SyncOrder() {
		e := stats.Entities[kind]
		fmt.Fprintf(&sb, "%s: %d", kindNames[kind], e.Total)
		if e.Pending > 0 {
			fmt.Fprintf(&sb, " (%d pending)", e.Pending)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Pending sync: %d\n", stats.Pending)
	if stats.LastSync.IsZero() {
		sb.WriteString("Last sync: never")
	} else {
		fmt.Fprintf(&sb, "Last sync: %s", stats.LastSync.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func formatSync(up *farmsync.UploadReport, down *farmsync.DownloadReport) string {
	var sb strings.Builder
	if up != nil {
		fmt.Fprintf(&sb, "Uploaded %d records", up.TotalSynced)
		if up.TotalFailed > 0 {
			fmt.Fprintf(&sb, ", %d failed and stay pending", up.TotalFailed)
		}
		sb.WriteString("\n")
	}
	if down != nil {
		fmt.Fprintf(&sb, "Downloaded %d records", down.TotalDownloaded)
		if down.TotalFailed > 0 {
			fmt.Fprintf(&sb, ", %d failed", down.TotalFailed)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAnimals(animals []farmsync.Animal) string {
	if len(animals) == 0 {
		return "No animals found."
	}
	sort.Slice(animals, func(i, j int) bool { return animals[i].InternalID < animals[j].InternalID })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d animals:\n", len(animals))
	for _, a := range animals {
		fmt.Fprintf(&sb, "- %s", a.InternalID)
		if a.Name != "" {
			fmt.Fprintf(&sb, " %s", a.Name)
		}
		fmt.Fprintf(&sb, " (%s, %s, %s)\n", a.Sex, a.Status, a.SyncStatus)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAnimal(a *farmsync.Animal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", a.InternalID, a.Name)
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "  %s: %s\n", label, value)
		}
	}
	field("Sex", a.Sex)
	field("Breed", a.Breed)
	field("Born", a.BirthDate)
	field("Status", a.Status)
	field("State", a.PhysiologicalState)
	field("Location", a.Location)
	field("Sync", string(a.SyncStatus))
	return sb.String()
}
