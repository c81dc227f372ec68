package bot

// Button is a reply-keyboard key or, with Data set, an inline button.
type Button struct {
	Text           string
	Data           string
	RequestContact bool
}

// Keyboard is the set of options shown with a message.
type Keyboard struct {
	Inline bool
	Remove bool
	Rows   [][]Button
}

func ReplyKeyboard(rows ...[]Button) *Keyboard { return &Keyboard{Rows: rows} }

func InlineKeyboard(rows ...[]Button) *Keyboard { return &Keyboard{Inline: true, Rows: rows} }

func RemoveKeyboard() *Keyboard { return &Keyboard{Remove: true} }

func Row(buttons ...Button) []Button { return buttons }

func Key(text string) Button { return Button{Text: text} }

func Data(text, data string) Button { return Button{Text: text, Data: data} }

// Labels returns every button text, row by row.
func (k *Keyboard) Labels() []string {
	if k == nil {
		return nil
	}
	var out []string
	for _, r := range k.Rows {
		for _, b := range r {
			out = append(out, b.Text)
		}
	}
	return out
}

// CallbackData returns every inline button payload.
func (k *Keyboard) CallbackData() []string {
	if k == nil {
		return nil
	}
	var out []string
	for _, r := range k.Rows {
		for _, b := range r {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

// markup renders the Bot API reply_markup object.
func (k *Keyboard) markup() any {
	if k == nil {
		return nil
	}
	if k.Remove {
		return map[string]any{"remove_keyboard": true}
	}
	if k.Inline {
		rows := make([][]map[string]string, 0, len(k.Rows))
		for _, r := range k.Rows {
			row := make([]map[string]string, 0, len(r))
			for _, b := range r {
				row = append(row, map[string]string{"text": b.Text, "callback_data": b.Data})
			}
			rows = append(rows, row)
		}
		return map[string]any{"inline_keyboard": rows}
	}
	rows := make([][]map[string]any, 0, len(k.Rows))
	for _, r := range k.Rows {
		row := make([]map[string]any, 0, len(r))
		for _, b := range r {
			key := map[string]any{"text": b.Text}
			if b.RequestContact {
				key["request_contact"] = true
			}
			row = append(row, key)
		}
		rows = append(rows, row)
	}
	return map[string]any{
		"keyboard":          rows,
		"resize_keyboard":   true,
		"one_time_keyboard": false,
	}
}
