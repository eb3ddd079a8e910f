package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/monitor"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/notifier"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	kit "github.com/ryanwhyr/uniqlo-sale-notifier/internal/transport"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
	"github.com/ryanwhyr/uniqlo-sale-notifier/pkg/tgui"
	tele "gopkg.in/telebot.v4"
)

// CatalogPort is the slice of the catalog client the handlers need.
type CatalogPort interface {
	FetchProductName(ctx context.Context, url string) (string, error)
	StoreName(ctx context.Context, storeID string) string
}

// MonitorPort exposes the monitor operations used by commands.
type MonitorPort interface {
	Enabled() bool
	Snapshot() monitor.Snapshot
	CheckProduct(ctx context.Context, p storage.Product) monitor.CheckResult
}

// Handlers owns the domain command implementations.
type Handlers struct {
	Store     storage.Store
	Catalog   CatalogPort
	Monitor   MonitorPort
	StartedAt time.Time
	Log       logx.Logger
}

const maxProductsPerChat = 50

// Registry returns the command and callback tables for the dispatcher.
func (h *Handlers) Registry() ([]Command, []CallbackRoute) {
	cmds := []Command{
		{
			Name:        "start",
			Description: "mulai dan lihat fitur bot",
			Usage:       "/start",
			Handle:      h.cmdStart,
		},
		{
			Name:        "add",
			Aliases:     []string{"tambah"},
			Description: "tambah produk untuk dipantau",
			Usage:       "/add <link produk uniqlo.com/id>",
			Timeout:     30 * time.Second,
			Handle:      h.cmdAdd,
		},
		{
			Name:        "list",
			Aliases:     []string{"daftar"},
			Description: "daftar produk yang dipantau",
			Usage:       "/list",
			Handle:      h.cmdList,
		},
		{
			Name:        "del",
			Aliases:     []string{"hapus"},
			Description: "hapus produk dari pantauan",
			Usage:       "/del <nomor>",
			Handle:      h.cmdDel,
		},
		{
			Name:        "stores",
			Aliases:     []string{"toko"},
			Description: "daftar toko yang dipantau",
			Usage:       "/stores",
			Handle:      h.cmdStores,
		},
		{
			Name:        "addstore",
			Description: "tambah toko untuk dipantau",
			Usage:       "/addstore <store id>",
			Timeout:     20 * time.Second,
			Handle:      h.cmdAddStore,
		},
		{
			Name:        "delstore",
			Description: "hapus toko dari pantauan",
			Usage:       "/delstore <store id>",
			Handle:      h.cmdDelStore,
		},
		{
			Name:        "check",
			Aliases:     []string{"cek"},
			Description: "cek sale untuk produk Anda sekarang",
			Usage:       "/check",
			Timeout:     5 * time.Minute,
			Handle:      h.cmdCheck,
		},
		{
			Name:        "reset",
			Description: "reset riwayat notifikasi produk Anda",
			Usage:       "/reset",
			Handle:      h.cmdReset,
		},
		{
			Name:        "status",
			Description: "status bot dan hasil pengecekan terakhir",
			Usage:       "/status",
			Access:      AccessOwnerOnly,
			Handle:      h.cmdStatus,
		},
	}

	cbs := []CallbackRoute{
		{Scope: "prod", Action: "page", Handle: h.cbListPage},
		{Scope: "prod", Action: "del", Handle: h.cbDelProduct},
		{Scope: "prod", Action: "keep", Handle: h.cbKeep},
		{Scope: "ledger", Action: "reset", Handle: h.cbResetLedger},
		{Scope: "ledger", Action: "keep", Handle: h.cbKeep},
	}
	return cmds, cbs
}

func (h *Handlers) audit(ctx context.Context, req *Request, action, target string, err error) {
	e := storage.AuditEntry{
		At:      time.Now(),
		ActorID: req.FromID,
		ChatID:  req.Chat.ChatID,
		Action:  action,
		Target:  target,
		OK:      1,
	}
	if msg := req.Update.Message; msg != nil {
		e.ActorUsername = msg.FromUsername
	}
	if err != nil {
		e.OK, e.Fail = 0, 1
		e.Error = err.Error()
	}
	if aerr := h.Store.AppendAudit(ctx, e); aerr != nil {
		h.Log.Debug("audit write failed", logx.Any("err", aerr))
	}
}

func (h *Handlers) cmdStart(ctx context.Context, req *Request) error {
	m := tgui.New().
		Title("👋", "Selamat Datang di Uniqlo Sale Notifier!").
		Blank().
		Line("Bot ini akan membantu Anda memantau produk Uniqlo yang sedang sale.").
		Blank().
		Section("Fitur:").
		Bullets(
			"➕ /add — tambah produk untuk dipantau",
			"📋 /list — lihat daftar produk yang dipantau",
			"🏪 /stores — kelola toko yang ingin dipantau",
			"🔔 Notifikasi otomatis saat produk sale",
			"📊 Info lengkap: nama, size, toko, harga sebelum & sesudah sale",
		).
		Blank().
		Line("Ketik /help untuk daftar perintah lengkap.").
		Build()
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (h *Handlers) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("📝", "Tambah Produk").
			Line("Kirim: /add <link produk>").
			Blank().
			Line("Contoh:").
			Code("/add https://www.uniqlo.com/id/id/products/E459565-000").
			Build())
	}
	rawURL := strings.TrimSpace(req.Args[0])
	catalogID, ok := catalog.ExtractProductID(rawURL)
	if !ok {
		return h.reply(ctx, req, tgui.New().
			Title("❌", "Link Tidak Valid").
			Line("Pastikan link berasal dari uniqlo.com/id dan mengandung kode produk.").
			Line("Contoh: https://www.uniqlo.com/id/id/products/E459565-000").
			Build())
	}

	existing, err := h.Store.ListProductsByChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if len(existing) >= maxProductsPerChat {
		return h.reply(ctx, req, tgui.New().
			Title("⚠️", "Batas Produk Tercapai").
			Line(fmt.Sprintf("Maksimal %d produk per chat. Hapus produk lama dengan /del.", maxProductsPerChat)).
			Build())
	}

	// Name scrape is best-effort; the product is tracked either way.
	name, nerr := h.Catalog.FetchProductName(ctx, rawURL)
	if nerr != nil {
		h.Log.Debug("product name scrape failed", logx.String("url", rawURL), logx.Any("err", nerr))
		name = catalogID
	}

	id, err := h.Store.AddProduct(ctx, storage.Product{
		ChatID:    req.Chat.ChatID,
		URL:       rawURL,
		CatalogID: catalogID,
		Name:      name,
	})
	h.audit(ctx, req, "product.add", catalogID, err)
	if errors.Is(err, storage.ErrExists) {
		return h.reply(ctx, req, tgui.New().
			Title("⚠️", "Produk Sudah Ada").
			Line("Produk ini sudah ada dalam daftar pantauan Anda.").
			Build())
	}
	if err != nil {
		return err
	}

	h.Log.Info("product added",
		logx.Int64("product_id", id),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.String("catalog_id", catalogID),
	)
	return h.reply(ctx, req, tgui.New().
		Title("✅", "Produk Berhasil Ditambahkan!").
		Blank().
		KV("Nama", name).
		KV("Kode", catalogID).
		Blank().
		Line("Bot akan memberi tahu Anda saat produk ini sale.").
		Build())
}

func (h *Handlers) cmdList(ctx context.Context, req *Request) error {
	products, err := h.Store.ListProductsByChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("📋", "Daftar Produk").
			Line("Anda belum menambahkan produk untuk dipantau.").
			Line("Gunakan /add <link> untuk menambahkan.").
			Build())
	}

	return h.reply(ctx, req, productListMessage(products, 0))
}

const productPageSize = 10

func productListMessage(products []storage.Product, page int) tgui.Message {
	sub, page, size, from, _, hasPrev, hasNext := tgui.PaginateSlice(products, page, productPageSize)

	b := tgui.New().Title("📋", "Daftar Produk yang Dipantau").Blank()
	for i, p := range sub {
		name := p.Name
		if name == "" {
			name = p.CatalogID
		}
		b.RawLine(fmt.Sprintf("%d. %s", from+i+1, tgui.Link(tgui.TruncRunes(name, 48), p.URL).String()))
	}
	b.Blank().Line("Hapus dengan /del <nomor>.")

	if hasPrev || hasNext {
		b.Line(tgui.PageLabel(page, size, len(products)))
		var nav []tele.Btn
		if hasPrev {
			nav = append(nav, tgui.Btn("⬅️", tgui.Data("prod", "page", strconv.Itoa(page-1))))
		}
		if hasNext {
			nav = append(nav, tgui.Btn("➡️", tgui.Data("prod", "page", strconv.Itoa(page+1))))
		}
		b.Inline(tgui.NewInline().Row(nav...))
	}
	return b.Build()
}

func (h *Handlers) cbListPage(ctx context.Context, req *Request, payload string) error {
	page, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return nil
	}
	products, err := h.Store.ListProductsByChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	return h.editOrReply(ctx, req, productListMessage(products, page))
}

func (h *Handlers) cmdDel(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("❌", "Nomor Kurang").
			Line("Gunakan: /del <nomor> (lihat nomor di /list).").
			Build())
	}
	idx, err := strconv.Atoi(strings.TrimSpace(req.Args[0]))
	if err != nil || idx < 1 {
		return h.reply(ctx, req, tgui.New().Title("❌", "Nomor Tidak Valid").Build())
	}
	products, err := h.Store.ListProductsByChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if idx > len(products) {
		return h.reply(ctx, req, tgui.New().
			Title("❌", "Nomor Tidak Ditemukan").
			Line(fmt.Sprintf("Anda punya %d produk. Lihat /list.", len(products))).
			Build())
	}
	p := products[idx-1]
	name := p.Name
	if name == "" {
		name = p.CatalogID
	}

	kb := tgui.ConfirmInline(
		tgui.Btn("🗑 Ya, hapus", tgui.Data("prod", "del", strconv.FormatInt(p.ID, 10))),
		tgui.Btn("Batal", tgui.Data("prod", "keep", "")),
	)
	return h.reply(ctx, req, tgui.New().
		Title("🗑", "Hapus Produk?").
		Line(name).
		Inline(kb).
		Build())
}

func (h *Handlers) cbDelProduct(ctx context.Context, req *Request, payload string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return nil
	}
	p, found, err := h.Store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	// Only the owning chat may delete.
	if !found || p.ChatID != req.Chat.ChatID {
		return h.editOrReply(ctx, req, tgui.New().Title("❌", "Produk tidak ditemukan.").Build())
	}
	err = h.Store.DeleteProduct(ctx, id)
	h.audit(ctx, req, "product.del", p.CatalogID, err)
	if err != nil {
		return err
	}
	name := p.Name
	if name == "" {
		name = p.CatalogID
	}
	h.Log.Info("product deleted", logx.Int64("product_id", id), logx.Int64("chat_id", req.Chat.ChatID))
	return h.editOrReply(ctx, req, tgui.New().
		Title("✅", "Produk Dihapus").
		Line(name).
		Build())
}

func (h *Handlers) cbKeep(ctx context.Context, req *Request, _ string) error {
	return h.editOrReply(ctx, req, tgui.New().Title("❌", "Operasi dibatalkan.").Build())
}

func (h *Handlers) cmdStores(ctx context.Context, req *Request) error {
	stores, err := h.Store.ListTrackedStores(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("🏪", "Toko yang Dipantau").
			Line("Anda belum menambahkan toko; bot memakai toko bawaan.").
			Blank().
			Line("Tambahkan dengan /addstore <store id>.").
			Build())
	}
	b := tgui.New().Title("🏪", "Toko yang Dipantau").Blank()
	for i, s := range stores {
		label := s.StoreName
		if label == "" {
			label = s.StoreID
		}
		b.Line(fmt.Sprintf("%d. %s (%s)", i+1, label, s.StoreID))
	}
	b.Blank().Line("Hapus dengan /delstore <store id>.")
	return h.reply(ctx, req, b.Build())
}

func (h *Handlers) cmdAddStore(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("🏪", "Tambah Toko").
			Line("Gunakan: /addstore <store id>").
			Build())
	}
	storeID := strings.TrimSpace(req.Args[0])
	if storeID == "" {
		return h.reply(ctx, req, tgui.New().Title("❌", "Store ID kosong.").Build())
	}
	name := h.Catalog.StoreName(ctx, storeID)
	err := h.Store.AddTrackedStore(ctx, storage.TrackedStore{
		ChatID:    req.Chat.ChatID,
		StoreID:   storeID,
		StoreName: name,
	})
	h.audit(ctx, req, "store.add", storeID, err)
	if err != nil {
		return err
	}
	return h.reply(ctx, req, tgui.New().
		Title("✅", "Toko Berhasil Ditambahkan!").
		Blank().
		KV("Toko", name).
		KV("ID", storeID).
		Blank().
		Line("Bot akan memantau produk di toko ini.").
		Build())
}

func (h *Handlers) cmdDelStore(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("❌", "Store ID kurang").
			Line("Gunakan: /delstore <store id> (lihat /stores).").
			Build())
	}
	storeID := strings.TrimSpace(req.Args[0])
	err := h.Store.DeleteTrackedStore(ctx, req.Chat.ChatID, storeID)
	h.audit(ctx, req, "store.del", storeID, err)
	if err != nil {
		return err
	}
	return h.reply(ctx, req, tgui.New().Title("✅", "Toko berhasil dihapus!").Build())
}

func (h *Handlers) cmdCheck(ctx context.Context, req *Request) error {
	products, err := h.Store.ListProductsByChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return h.reply(ctx, req, tgui.New().
			Title("🔍", "Tidak Ada Produk").
			Line("Tambahkan produk dulu dengan /add <link>.").
			Build())
	}

	_ = h.reply(ctx, req, tgui.New().
		Title("🔍", "Mengecek Produk...").
		Line(fmt.Sprintf("Memeriksa %d produk, mohon tunggu.", len(products))).
		Build())

	b := tgui.New().Title("📊", "Hasil Pengecekan").Blank()
	for i, p := range products {
		res := h.Monitor.CheckProduct(ctx, p)
		b.Line(fmt.Sprintf("%d. %s", i+1, describeResult(p, res)))
	}
	h.audit(ctx, req, "check.manual", fmt.Sprintf("%d products", len(products)), nil)
	return h.reply(ctx, req, b.Build())
}

func describeResult(p storage.Product, res monitor.CheckResult) string {
	name := p.Name
	if name == "" {
		name = p.CatalogID
	}
	switch res.Outcome {
	case monitor.OutcomeNotified:
		return "🔥 " + name + " — SALE! Notifikasi dikirim. " + notifier.FormatRupiah(res.State.LowestPromo)
	case monitor.OutcomeSuppressed:
		return "🏷 " + name + " — sedang sale (" + notifier.FormatRupiah(res.State.LowestPromo) + ")"
	case monitor.OutcomeNoSale:
		return "💤 " + name + " — belum sale"
	case monitor.OutcomeSaleEnded:
		return "📈 " + name + " — sale sudah berakhir"
	case monitor.OutcomeOutOfStock:
		if res.Online != nil && res.Online.Available {
			return "📭 " + name + " — stok toko habis, masih tersedia online"
		}
		return "📭 " + name + " — stok habis"
	case monitor.OutcomeNoData:
		return "⚠️ " + name + " — data tidak tersedia"
	default:
		return "⚠️ " + name + " — gagal dicek"
	}
}

func (h *Handlers) cmdReset(ctx context.Context, req *Request) error {
	kb := tgui.ConfirmInline(
		tgui.Btn("🔄 Ya, reset", tgui.Data("ledger", "reset", "")),
		tgui.Btn("Batal", tgui.Data("ledger", "keep", "")),
	)
	return h.reply(ctx, req, tgui.New().
		Title("🔄", "Reset Riwayat Notifikasi?").
		Line("Produk yang masih sale akan dinotifikasi lagi pada pengecekan berikutnya.").
		Inline(kb).
		Build())
}

func (h *Handlers) cbResetLedger(ctx context.Context, req *Request, _ string) error {
	n, err := h.Store.ClearLedgerByChat(ctx, req.Chat.ChatID)
	h.audit(ctx, req, "ledger.reset", strconv.FormatInt(n, 10), err)
	if err != nil {
		return err
	}
	return h.editOrReply(ctx, req, tgui.New().
		Title("✅", "Riwayat Notifikasi Direset").
		Line(fmt.Sprintf("%d catatan dihapus.", n)).
		Build())
}

func (h *Handlers) cmdStatus(ctx context.Context, req *Request) error {
	snap := h.Monitor.Snapshot()
	b := tgui.New().Title("📊", "Status Bot").Blank()
	b.KV("Uptime", time.Since(h.StartedAt).Round(time.Second).String())
	b.KV("Monitor", onOff(snap.Enabled))
	if snap.Enabled {
		b.KV("Jadwal", snap.Schedule)
	}
	if snap.Running {
		b.KV("Pengecekan", "sedang berjalan")
	}
	if !snap.LastRunAt.IsZero() {
		b.KV("Terakhir", snap.LastRunAt.Format("02/01/2006 15:04:05"))
		b.KV("Durasi", snap.LastDuration.Round(time.Millisecond).String())
		b.KV("Dicek", strconv.Itoa(snap.LastChecked))
		b.KV("Notifikasi", strconv.Itoa(snap.LastNotified))
		b.KV("Gagal", strconv.Itoa(snap.LastFailed))
	}
	return h.reply(ctx, req, b.Build())
}

func onOff(v bool) string {
	if v {
		return "aktif"
	}
	return "nonaktif"
}

func (h *Handlers) reply(ctx context.Context, req *Request, m tgui.Message) error {
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}

// editOrReply replaces the originating inline-keyboard message when the
// request came from a callback, otherwise sends a fresh message.
func (h *Handlers) editOrReply(ctx context.Context, req *Request, m tgui.Message) error {
	if cb := req.Update.Callback; cb != nil && cb.MessageID != 0 {
		ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		if err := m.Edit(ctx, req.Adapter, ref, req.Chat); err == nil {
			return nil
		}
	}
	return h.reply(ctx, req, m)
}
