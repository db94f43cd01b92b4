package sqlinline

const QEnsureEntitiesTable = `--sql c138d2b1-0b3c-4069-bd58-30e06cc0a021
create table if not exists entities (
  table_name    text        not null,
  partition_key text        not null,
  row_key       text        not null,
  properties    jsonb       not null default '{}'::jsonb,
  updated_at    timestamptz not null default now(),
  primary key (table_name, partition_key, row_key)
);
`

const QUpsertEntity = `--sql 51495bc7-9396-43c9-803a-66fe6298016c
insert into entities(table_name, partition_key, row_key, properties, updated_at)
values ($1::text, $2::text, $3::text, coalesce($4::jsonb, '{}'::jsonb), now())
on conflict (table_name, partition_key, row_key) do update set
  properties = excluded.properties,
  updated_at = now()
returning updated_at;
`

const QSelectEntity = `--sql 99433782-64f3-4eca-8542-ea537c5b7c90
select partition_key, row_key, properties, updated_at
from entities
where table_name = $1::text
  and partition_key = $2::text
  and row_key = $3::text
limit 1;
`

const QListEntitiesByPartition = `--sql 3d12f707-6343-403a-9bad-8d781d71fa2f
select partition_key, row_key, properties, updated_at
from entities
where table_name = $1::text
  and partition_key = $2::text
order by row_key asc;
`

const QDeleteEntity = `--sql f2c84619-4ace-4505-b345-2e8edd6caa6e
delete from entities
where table_name = $1::text
  and partition_key = $2::text
  and row_key = $3::text;
`
