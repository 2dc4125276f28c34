package canvas

import "github.com/jackc/pgx/v5"

func pgxCanvasIdentifier() pgx.Identifier {
	return pgx.Identifier{"canvas"}
}

// pgxCopySource adapts a slice of row values to pgx.CopyFromSource for
// the bulk-insert half of ReplaceAll.
type pgxCopySource struct {
	rows []([]any)
	pos  int
}

func (s *pgxCopySource) Next() bool {
	s.pos++
	return s.pos <= len(s.rows)
}

func (s *pgxCopySource) Values() ([]any, error) {
	return s.rows[s.pos-1], nil
}

func (s *pgxCopySource) Err() error {
	return nil
}
