package apps

type Repo interface {
	Get(id string) (App, error)
	Put(id string, app App) error
	List() ([]App, error)
	Delete(id string) error
	Clear() error
}
