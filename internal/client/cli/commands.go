package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

var errUsage = errors.New("wrong arguments, type 'help'")

func (a *App) List(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	table, err := entities.ParseTable(args[0])
	if err != nil {
		return err
	}

	list, err := a.list(ctx, table)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(a.out, "No %s.\n", table)
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUMMARY\tUPDATED")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.GetID(), summary(e), e.Updated().Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	table, err := entities.ParseTable(args[0])
	if err != nil {
		return err
	}

	list, err := a.list(ctx, table)
	if err != nil {
		return err
	}
	for _, e := range list {
		if e.GetID() != args[1] {
			continue
		}
		out, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(out))
		return nil
	}
	return fmt.Errorf("%s[%s]: %w", table, args[1], common.ErrNotFound)
}

func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	table, err := entities.ParseTable(args[0])
	if err != nil {
		return err
	}
	fields, err := ParseFields(args[1:])
	if err != nil {
		return err
	}

	blank, err := entities.New(table)
	if err != nil {
		return err
	}
	draft, err := entities.Merge(blank, fields)
	if err != nil {
		return fmt.Errorf("bad fields: %w", err)
	}

	var created entities.Entity
	switch d := draft.(type) {
	case *entities.Tender:
		created, err = result(a.data.CreateTender(ctx, d))
	case *entities.Supplier:
		created, err = result(a.data.CreateSupplier(ctx, d))
	case *entities.Expense:
		created, err = result(a.data.CreateExpense(ctx, d))
	}
	if err != nil {
		return err
	}

	if models.IsTempID(created.GetID()) {
		a.printWarning("Saved %s[%s] locally, it will be sent when online", table, created.GetID())
		return nil
	}
	a.printSuccess("Created %s[%s]", table, created.GetID())
	return nil
}

func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	table, err := entities.ParseTable(args[0])
	if err != nil {
		return err
	}
	id := args[1]
	patch, err := ParseFields(args[2:])
	if err != nil {
		return err
	}

	var updated entities.Entity
	switch table {
	case entities.Tenders:
		updated, err = result(a.data.UpdateTender(ctx, id, patch))
	case entities.Suppliers:
		updated, err = result(a.data.UpdateSupplier(ctx, id, patch))
	case entities.Expenses:
		updated, err = result(a.data.UpdateExpense(ctx, id, patch))
	}
	if err != nil {
		return err
	}
	if updated == nil {
		return fmt.Errorf("%s[%s]: %w", table, id, common.ErrNotFound)
	}

	a.printSuccess("Updated %s[%s]", table, id)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	table, err := entities.ParseTable(args[0])
	if err != nil {
		return err
	}
	id := args[1]

	switch table {
	case entities.Tenders:
		_, err = a.data.DeleteTender(ctx, id)
	case entities.Suppliers:
		_, err = a.data.DeleteSupplier(ctx, id)
	case entities.Expenses:
		_, err = a.data.DeleteExpense(ctx, id)
	}
	if err != nil {
		return err
	}

	a.printSuccess("Deleted %s[%s]", table, id)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.data.SyncNow(ctx); err != nil {
		if errors.Is(err, common.ErrOffline) {
			a.printWarning("Offline, changes stay queued")
			return nil
		}
		return err
	}

	n, err := a.data.PendingChangesCount(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.printWarning("Synchronized, %d changes still pending", n)
		return nil
	}
	a.printSuccess("Synchronized")
	return nil
}

func (a *App) Stats(ctx context.Context) error {
	st, err := a.data.CacheStats(ctx)
	if err != nil {
		return err
	}
	last, err := a.engine.LastSync(ctx)
	if err != nil {
		return err
	}

	lastSync := "never"
	if !last.IsZero() {
		lastSync = last.Local().Format(time.DateTime)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", a.mode())
	fmt.Fprintf(tw, "tenders\t%d\n", st.Tenders)
	fmt.Fprintf(tw, "suppliers\t%d\n", st.Suppliers)
	fmt.Fprintf(tw, "expenses\t%d\n", st.Expenses)
	fmt.Fprintf(tw, "pending changes\t%d\n", st.PendingChanges)
	fmt.Fprintf(tw, "last sync\t%s\n", lastSync)
	return tw.Flush()
}

func (a *App) Clear(ctx context.Context) error {
	n, err := a.data.PendingChangesCount(ctx)
	if err != nil {
		return err
	}

	prompt := "Type 'yes' to wipe all local data"
	if n > 0 {
		prompt = fmt.Sprintf("%s, including %d unsynced changes", prompt, n)
	}
	answer, err := GetSimpleText(a.in, prompt, a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}

	if err := a.data.ClearAllData(ctx); err != nil {
		return err
	}
	a.printSuccess("Local data cleared")
	return nil
}

func (a *App) list(ctx context.Context, table entities.Table) ([]entities.Entity, error) {
	switch table {
	case entities.Tenders:
		return widen(a.data.GetTenders(ctx))
	case entities.Suppliers:
		return widen(a.data.GetSuppliers(ctx))
	case entities.Expenses:
		return widen(a.data.GetExpenses(ctx))
	}
	return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
}

// result converts a typed facade result, mapping a nil pointer to a nil
// interface.
func result[E entities.Entity](e E, err error) (entities.Entity, error) {
	var zero E
	if err != nil || any(e) == any(zero) {
		return nil, err
	}
	return e, nil
}

func widen[E entities.Entity](list []E, err error) ([]entities.Entity, error) {
	if err != nil {
		return nil, err
	}
	out := make([]entities.Entity, len(list))
	for i, e := range list {
		out[i] = e
	}
	return out, nil
}

func summary(e entities.Entity) string {
	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	money := func(amount float64, currency string) string {
		if amount == 0 {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%.2f %s", amount, currency))
	}

	switch v := e.(type) {
	case *entities.Tender:
		add(v.Name)
		add(v.Status)
		add(money(v.Amount, v.Currency))
	case *entities.Supplier:
		add(v.Name)
		add(v.Email)
	case *entities.Expense:
		add(v.Category)
		add(money(v.Amount, v.Currency))
		if v.TenderID != "" {
			add("tender " + v.TenderID)
		}
	}
	return strings.Join(parts, ", ")
}
